package models

// Stock 股票实时行情
type Stock struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Volume        int64   `json:"volume"`
	Amount        float64 `json:"amount"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	PreClose      float64 `json:"preClose"`
}

// KLineData K线数据
type KLineData struct {
	Time   string  `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// Telegraph 财经快讯
type Telegraph struct {
	Time    string `json:"time"`
	Content string `json:"content"`
	URL     string `json:"url,omitempty"`
}

// MarketIndex 大盘指数
type MarketIndex struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
}

// StockPosition 用户持仓信息
type StockPosition struct {
	Shares    int64   `json:"shares"`    // 持仓数量
	CostPrice float64 `json:"costPrice"` // 成本价
}
