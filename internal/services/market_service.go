package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/run-bigpig/warroom/internal/logger"
	"github.com/run-bigpig/warroom/internal/models"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

var marketLog = logger.New("market")

// 腾讯行情接口地址
const (
	quoteAPIBase  = "https://qt.gtimg.cn/q="
	klineAPIBase  = "https://web.ifzq.gtimg.cn/appstock/app/fqkline/get"
	minuteAPIBase = "https://web.ifzq.gtimg.cn/appstock/app/minute/query"
)

// quoteCacheTTL 行情缓存有效期，避免推送循环高频打接口
const quoteCacheTTL = 3 * time.Second

type cachedQuote struct {
	stock     models.Stock
	fetchedAt time.Time
}

// MarketService 行情服务，数据来源于腾讯行情接口
type MarketService struct {
	client *http.Client

	mu         sync.RWMutex
	quoteCache map[string]cachedQuote
}

// NewMarketService 创建行情服务
func NewMarketService() *MarketService {
	return &MarketService{
		client: &http.Client{Timeout: 10 * time.Second},
		quoteCache: make(map[string]cachedQuote),
	}
}

// GetStockRealTimeData 获取股票实时行情，支持批量查询
func (s *MarketService) GetStockRealTimeData(codes ...string) ([]models.Stock, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("未提供股票代码")
	}

	// 先查缓存
	if stocks, ok := s.lookupCache(codes); ok {
		return stocks, nil
	}

	resp, err := s.client.Get(quoteAPIBase + strings.Join(codes, ","))
	if err != nil {
		return nil, fmt.Errorf("请求行情接口失败: %w", err)
	}
	defer resp.Body.Close()

	// 接口返回 GBK 编码，统一按 GB18030 解码
	body, err := decodeGB18030(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("解码行情数据失败: %w", err)
	}

	stocks, err := parseQuoteResponse(body)
	if err != nil {
		return nil, err
	}

	s.fillCache(stocks)
	return stocks, nil
}

// lookupCache 全部命中且未过期才返回
func (s *MarketService) lookupCache(codes []string) ([]models.Stock, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	stocks := make([]models.Stock, 0, len(codes))
	for _, code := range codes {
		cached, ok := s.quoteCache[code]
		if !ok || now.Sub(cached.fetchedAt) > quoteCacheTTL {
			return nil, false
		}
		stocks = append(stocks, cached.stock)
	}
	return stocks, true
}

func (s *MarketService) fillCache(stocks []models.Stock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, stock := range stocks {
		s.quoteCache[stock.Symbol] = cachedQuote{stock: stock, fetchedAt: now}
	}
}

// decodeGB18030 将 GB18030 编码的字节流解码为 UTF-8 字符串
func decodeGB18030(r io.Reader) (string, error) {
	decoded, err := io.ReadAll(transform.NewReader(r, simplifiedchinese.GB18030.NewDecoder()))
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// parseQuoteResponse 解析腾讯行情响应
// 格式: v_sh600519="1~贵州茅台~600519~1700.00~...";  每行一只股票
func parseQuoteResponse(body string) ([]models.Stock, error) {
	var stocks []models.Stock
	for _, line := range strings.Split(body, ";") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		stock, err := parseQuoteLine(line)
		if err != nil {
			marketLog.Warn("跳过无法解析的行情行: %v", err)
			continue
		}
		stocks = append(stocks, stock)
	}
	if len(stocks) == 0 {
		return nil, fmt.Errorf("行情响应中没有有效数据")
	}
	return stocks, nil
}

// parseQuoteLine 解析单行行情，字段以 ~ 分隔
func parseQuoteLine(line string) (models.Stock, error) {
	eq := strings.Index(line, "=")
	if eq < 0 || !strings.HasPrefix(line, "v_") {
		return models.Stock{}, fmt.Errorf("非法行情行: %q", truncateForLog(line))
	}
	symbol := line[2:eq]
	payload := strings.Trim(line[eq+1:], `"`)

	fields := strings.Split(payload, "~")
	if len(fields) < 38 {
		return models.Stock{}, fmt.Errorf("行情字段不足: %s 只有 %d 个", symbol, len(fields))
	}

	return models.Stock{
		Symbol:        symbol,
		Name:          fields[1],
		Price:         parseFloat(fields[3]),
		PreClose:      parseFloat(fields[4]),
		Open:          parseFloat(fields[5]),
		Volume:        parseInt(fields[6]),
		Change:        parseFloat(fields[31]),
		ChangePercent: parseFloat(fields[32]),
		High:          parseFloat(fields[33]),
		Low:           parseFloat(fields[34]),
		Amount:        parseFloat(fields[37]),
	}, nil
}

// GetKLineData 获取K线数据
// period: 1m(分时), 1d(日线), 1w(周线), 1mo(月线)
func (s *MarketService) GetKLineData(code, period string, days int) ([]models.KLineData, error) {
	if code == "" {
		return nil, fmt.Errorf("未提供股票代码")
	}
	if days <= 0 {
		days = 30
	}

	if period == "1m" {
		return s.getMinuteKLine(code)
	}

	apiPeriod, ok := map[string]string{"1d": "day", "1w": "week", "1mo": "month"}[period]
	if !ok {
		apiPeriod = "day"
	}

	url := fmt.Sprintf("%s?param=%s,%s,,,%d,qfq", klineAPIBase, code, apiPeriod, days)
	resp, err := s.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("请求K线接口失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseKLineResponse(body, code, apiPeriod)
}

// parseKLineResponse 解析日/周/月K线响应
// 结构: data.<code>.qfq<period> 或 data.<code>.<period>，每条为 [日期,开,收,高,低,量,...]
func parseKLineResponse(body []byte, code, apiPeriod string) ([]models.KLineData, error) {
	var raw struct {
		Data map[string]map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("解析K线响应失败: %w", err)
	}

	stockData, ok := raw.Data[code]
	if !ok {
		return nil, fmt.Errorf("K线响应中没有 %s 的数据", code)
	}

	// 前复权数据优先
	entries, ok := stockData["qfq"+apiPeriod]
	if !ok {
		entries, ok = stockData[apiPeriod]
	}
	if !ok {
		return nil, fmt.Errorf("K线响应中没有 %s 周期数据", apiPeriod)
	}

	var rows [][]any
	if err := json.Unmarshal(entries, &rows); err != nil {
		return nil, fmt.Errorf("解析K线条目失败: %w", err)
	}

	klines := make([]models.KLineData, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		klines = append(klines, models.KLineData{
			Time:   anyToString(row[0]),
			Open:   anyToFloat(row[1]),
			Close:  anyToFloat(row[2]),
			High:   anyToFloat(row[3]),
			Low:    anyToFloat(row[4]),
			Volume: int64(anyToFloat(row[5])),
		})
	}
	return klines, nil
}

// getMinuteKLine 获取分时数据
func (s *MarketService) getMinuteKLine(code string) ([]models.KLineData, error) {
	url := fmt.Sprintf("%s?code=%s", minuteAPIBase, code)
	resp, err := s.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("请求分时接口失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseMinuteResponse(body, code)
}

// parseMinuteResponse 解析分时响应
// 结构: data.<code>.data.data，每条为 "HHMM 价格 累计量"
func parseMinuteResponse(body []byte, code string) ([]models.KLineData, error) {
	var raw struct {
		Data map[string]struct {
			Data struct {
				Data []string `json:"data"`
			} `json:"data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("解析分时响应失败: %w", err)
	}

	stockData, ok := raw.Data[code]
	if !ok {
		return nil, fmt.Errorf("分时响应中没有 %s 的数据", code)
	}

	var klines []models.KLineData
	var prevVolume int64
	for _, entry := range stockData.Data.Data {
		parts := strings.Fields(entry)
		if len(parts) < 3 {
			continue
		}
		price := parseFloat(parts[1])
		total := parseInt(parts[2])
		klines = append(klines, models.KLineData{
			Time:   parts[0],
			Open:   price,
			Close:  price,
			High:   price,
			Low:    price,
			Volume: total - prevVolume,
		})
		prevVolume = total
	}
	return klines, nil
}

// 默认跟踪的大盘指数
var marketIndices = []struct {
	code string
	name string
}{
	{"sh000001", "上证指数"},
	{"sz399001", "深证成指"},
	{"sz399006", "创业板指"},
}

// GetMarketIndices 获取大盘指数行情
func (s *MarketService) GetMarketIndices() ([]models.MarketIndex, error) {
	codes := make([]string, len(marketIndices))
	for i, idx := range marketIndices {
		codes[i] = idx.code
	}

	stocks, err := s.GetStockRealTimeData(codes...)
	if err != nil {
		return nil, err
	}

	indices := make([]models.MarketIndex, 0, len(stocks))
	for _, stock := range stocks {
		indices = append(indices, models.MarketIndex{
			Symbol:        stock.Symbol,
			Name:          stock.Name,
			Price:         stock.Price,
			Change:        stock.Change,
			ChangePercent: stock.ChangePercent,
		})
	}
	return indices, nil
}

// IsMarketOpen 判断当前是否处于 A 股交易时段
func (s *MarketService) IsMarketOpen() bool {
	now := time.Now()
	weekday := now.Weekday()
	if weekday == time.Saturday || weekday == time.Sunday {
		return false
	}
	minutes := now.Hour()*60 + now.Minute()
	morning := minutes >= 9*60+30 && minutes <= 11*60+30
	afternoon := minutes >= 13*60 && minutes <= 15*60
	return morning || afternoon
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return v
}

func anyToFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		return parseFloat(x)
	default:
		return 0
	}
}

func anyToString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func truncateForLog(s string) string {
	runes := []rune(s)
	if len(runes) > 60 {
		return string(runes[:60]) + "..."
	}
	return s
}
