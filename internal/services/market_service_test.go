package services

import (
	"bytes"
	"testing"
)

// TestParseQuoteLine 测试行情行解析
func TestParseQuoteLine(t *testing.T) {
	line := `v_sh600519="1~贵州茅台~600519~1700.00~1688.00~1690.00~35000~17500~17500~1700.01~12~1700.02~8~1700.03~5~1700.04~3~1700.05~2~1699.99~6~1699.98~4~1699.97~7~1699.96~9~1699.95~1~~20240510150000~12.00~0.71~1712.00~1681.00~1700.00/35000/5950000~35000~595000~0.28~28.5~~1712.00~1681.00~1.84~21356.00~21356.00~9.8~1856.80~1519.20~1.05"`

	stock, err := parseQuoteLine(line)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}

	if stock.Symbol != "sh600519" {
		t.Errorf("代码期望 sh600519，实际 %s", stock.Symbol)
	}
	if stock.Name != "贵州茅台" {
		t.Errorf("名称期望 贵州茅台，实际 %s", stock.Name)
	}
	if stock.Price != 1700.00 {
		t.Errorf("价格期望 1700.00，实际 %.2f", stock.Price)
	}
	if stock.PreClose != 1688.00 {
		t.Errorf("昨收期望 1688.00，实际 %.2f", stock.PreClose)
	}
	if stock.Open != 1690.00 {
		t.Errorf("开盘期望 1690.00，实际 %.2f", stock.Open)
	}
	if stock.Change != 12.00 {
		t.Errorf("涨跌期望 12.00，实际 %.2f", stock.Change)
	}
	if stock.ChangePercent != 0.71 {
		t.Errorf("涨跌幅期望 0.71，实际 %.2f", stock.ChangePercent)
	}
	if stock.Volume != 35000 {
		t.Errorf("成交量期望 35000，实际 %d", stock.Volume)
	}
	if stock.High < stock.Low {
		t.Error("最高价小于最低价")
	}
}

// TestParseQuoteResponse 测试多股票响应与脏数据容错
func TestParseQuoteResponse(t *testing.T) {
	t.Run("多只股票", func(t *testing.T) {
		body := `v_sh600519="1~贵州茅台~600519~1700.00~1688.00~1690.00~35000~17500~17500~0~0~0~0~0~0~0~0~0~0~0~0~0~0~0~0~0~~20240510150000~12.00~0.71~1712.00~1681.00~x~35000~595000~0.28~0~0";
v_sz000001="51~平安银行~000001~10.50~10.40~10.45~880000~440000~440000~0~0~0~0~0~0~0~0~0~0~0~0~0~0~0~0~0~~20240510150000~0.10~0.96~10.62~10.38~x~880000~92400~0.45~0~0";`

		stocks, err := parseQuoteResponse(body)
		if err != nil {
			t.Fatalf("解析失败: %v", err)
		}
		if len(stocks) != 2 {
			t.Fatalf("期望 2 只股票，实际 %d", len(stocks))
		}
		if stocks[0].Name != "贵州茅台" || stocks[1].Name != "平安银行" {
			t.Errorf("名称解析错误: %s / %s", stocks[0].Name, stocks[1].Name)
		}
	})

	t.Run("坏行被跳过", func(t *testing.T) {
		body := `v_sh600519="1~贵州茅台~600519~1700.00~1688.00~1690.00~35000~17500~17500~0~0~0~0~0~0~0~0~0~0~0~0~0~0~0~0~0~~20240510150000~12.00~0.71~1712.00~1681.00~x~35000~595000~0.28~0~0";
垃圾数据;`

		stocks, err := parseQuoteResponse(body)
		if err != nil {
			t.Fatalf("解析失败: %v", err)
		}
		if len(stocks) != 1 {
			t.Errorf("期望跳过坏行后剩 1 只，实际 %d", len(stocks))
		}
	})

	t.Run("全部是坏数据时报错", func(t *testing.T) {
		if _, err := parseQuoteResponse("垃圾;更多垃圾;"); err == nil {
			t.Error("期望报错，实际成功")
		}
	})
}

// TestDecodeGB18030 测试编码转换
func TestDecodeGB18030(t *testing.T) {
	// "贵州茅台" 的 GBK 字节
	raw := []byte{0xB9, 0xF3, 0xD6, 0xDD, 0xC3, 0xA9, 0xCC, 0xA8}
	decoded, err := decodeGB18030(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if decoded != "贵州茅台" {
		t.Errorf("解码结果错误: %q", decoded)
	}
}

// TestParseKLineResponse 测试K线响应解析
func TestParseKLineResponse(t *testing.T) {
	body := []byte(`{"code":0,"data":{"sh600519":{"qfqday":[["2024-05-09","1688.00","1690.00","1695.00","1680.00","28000.00"],["2024-05-10","1690.00","1700.00","1712.00","1681.00","35000.00"]]}}}`)

	klines, err := parseKLineResponse(body, "sh600519", "day")
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if len(klines) != 2 {
		t.Fatalf("期望 2 条K线，实际 %d", len(klines))
	}

	k := klines[1]
	if k.Time != "2024-05-10" {
		t.Errorf("时间期望 2024-05-10，实际 %s", k.Time)
	}
	if k.Open != 1690.00 || k.Close != 1700.00 {
		t.Errorf("开收解析错误: 开=%.2f 收=%.2f", k.Open, k.Close)
	}
	if k.High < k.Low {
		t.Error("最高价小于最低价")
	}
	if k.Volume != 35000 {
		t.Errorf("成交量期望 35000，实际 %d", k.Volume)
	}

	t.Run("无前复权时回退普通数据", func(t *testing.T) {
		body := []byte(`{"code":0,"data":{"sz000001":{"day":[["2024-05-10","10.45","10.50","10.62","10.38","880000.00"]]}}}`)
		klines, err := parseKLineResponse(body, "sz000001", "day")
		if err != nil {
			t.Fatalf("解析失败: %v", err)
		}
		if len(klines) != 1 || klines[0].Close != 10.50 {
			t.Errorf("回退解析错误: %+v", klines)
		}
	})

	t.Run("缺少对应代码时报错", func(t *testing.T) {
		if _, err := parseKLineResponse(body, "sz999999", "day"); err == nil {
			t.Error("期望报错，实际成功")
		}
	})
}

// TestParseMinuteResponse 测试分时响应解析
func TestParseMinuteResponse(t *testing.T) {
	body := []byte(`{"code":0,"data":{"sh600519":{"data":{"data":["0930 1690.00 1200","0931 1692.50 2000","0932 1691.00 2600"]}}}}`)

	klines, err := parseMinuteResponse(body, "sh600519")
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if len(klines) != 3 {
		t.Fatalf("期望 3 条分时数据，实际 %d", len(klines))
	}
	if klines[1].Time != "0931" || klines[1].Close != 1692.50 {
		t.Errorf("分时解析错误: %+v", klines[1])
	}
	// 成交量应为增量而非累计
	if klines[0].Volume != 1200 || klines[1].Volume != 800 || klines[2].Volume != 600 {
		t.Errorf("增量成交量错误: %d %d %d", klines[0].Volume, klines[1].Volume, klines[2].Volume)
	}
}
