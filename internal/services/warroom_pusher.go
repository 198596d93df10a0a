package services

import (
	"context"
	"sync"
	"time"

	"github.com/run-bigpig/warroom/internal/logger"
	"github.com/run-bigpig/warroom/internal/models"
	"github.com/run-bigpig/warroom/internal/warroom"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

var pusherLog = logger.New("pusher")

// 事件名称常量
const (
	EventRoomMessage     = "warroom:message:new"
	EventRoomState       = "warroom:state:update"
	EventRoomQuestion    = "warroom:question:pending"
	EventStockUpdate     = "market:stock:update"
	EventIndicesUpdate   = "market:indices:update"
	EventTelegraphUpdate = "market:telegraph:update"
	EventWatchStock      = "warroom:watch"
)

// safeCall 安全调用，捕获 panic 避免推送循环崩溃
func safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			pusherLog.Error("panic recovered: %v", r)
		}
	}()
	fn()
}

// RoomPusher 战情室推送服务：把会话消息和盯盘行情实时推到前端。
// 消息走信号拉取订阅，行情走定时轮询，慢前端不会阻塞会话写入。
type RoomPusher struct {
	ctx           context.Context
	session       *warroom.Session
	marketService *MarketService
	newsService   *NewsService

	mu                   sync.RWMutex
	watchCode            string // 会话讨论的股票代码
	lastTelegraphContent string

	stopChan chan struct{}
	stopOnce sync.Once
	running  bool
}

// NewRoomPusher 创建战情室推送服务
func NewRoomPusher(session *warroom.Session, marketService *MarketService, newsService *NewsService) *RoomPusher {
	return &RoomPusher{
		session:       session,
		marketService: marketService,
		newsService:   newsService,
		stopChan:      make(chan struct{}),
	}
}

// SetWatchCode 设置盯盘股票
func (p *RoomPusher) SetWatchCode(code string) {
	p.mu.Lock()
	p.watchCode = code
	p.mu.Unlock()
}

// Start 启动推送服务
func (p *RoomPusher) Start(ctx context.Context) {
	p.ctx = ctx
	p.running = true

	// 监听前端切换盯盘股票
	runtime.EventsOn(p.ctx, EventWatchStock, func(data ...any) {
		if len(data) > 0 {
			if code, ok := data[0].(string); ok && code != "" {
				p.SetWatchCode(code)
				go safeCall(p.pushStockData)
			}
		}
	})

	go p.pumpMessages()
	go p.marketLoop()
}

// Stop 停止推送服务，幂等
func (p *RoomPusher) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		p.running = false
	})
}

// pumpMessages 会话消息泵：从订阅游标拉取新消息并推送到前端
func (p *RoomPusher) pumpMessages() {
	sub := p.session.Subscribe(-1)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-p.stopChan
		cancel()
	}()

	for {
		batch, err := sub.Next(ctx)
		if err != nil {
			pusherLog.Debug("message pump stopped: %v", err)
			return
		}
		for _, msg := range batch {
			safeCall(func() { runtime.EventsEmit(p.ctx, EventRoomMessage, msg) })
			if msg.Question != nil {
				safeCall(func() { runtime.EventsEmit(p.ctx, EventRoomQuestion, msg.Question) })
			}
		}
		safeCall(p.pushRoomState)
	}
}

// pushRoomState 推送会话状态快照
func (p *RoomPusher) pushRoomState() {
	runtime.EventsEmit(p.ctx, EventRoomState, map[string]any{
		"state":        p.session.State(),
		"participants": p.session.Participants(),
		"nextSpeaker":  p.session.NextIntroducer(),
	})
}

// marketLoop 行情推送循环：盯盘股票3秒，指数与快讯30秒
func (p *RoomPusher) marketLoop() {
	stockTicker := time.NewTicker(3 * time.Second)
	slowTicker := time.NewTicker(30 * time.Second)
	defer stockTicker.Stop()
	defer slowTicker.Stop()

	// 启动后立即推送一次
	safeCall(p.pushStockData)
	safeCall(p.pushMarketIndices)
	safeCall(p.pushTelegraphData)

	for {
		select {
		case <-p.stopChan:
			return
		case <-stockTicker.C:
			if !p.marketService.IsMarketOpen() {
				continue
			}
			safeCall(p.pushStockData)
		case <-slowTicker.C:
			safeCall(p.pushMarketIndices)
			safeCall(p.pushTelegraphData)
		}
	}
}

// pushStockData 推送盯盘股票实时数据
func (p *RoomPusher) pushStockData() {
	p.mu.RLock()
	code := p.watchCode
	p.mu.RUnlock()

	if code == "" {
		return
	}

	stocks, err := p.marketService.GetStockRealTimeData(code)
	if err != nil || len(stocks) == 0 {
		return
	}
	runtime.EventsEmit(p.ctx, EventStockUpdate, stocks[0])
}

// pushMarketIndices 推送大盘指数
func (p *RoomPusher) pushMarketIndices() {
	indices, err := p.marketService.GetMarketIndices()
	if err != nil {
		return
	}
	runtime.EventsEmit(p.ctx, EventIndicesUpdate, indices)
}

// pushTelegraphData 推送快讯，只在有新内容时推
func (p *RoomPusher) pushTelegraphData() {
	if p.newsService == nil {
		return
	}

	telegraphs, err := p.newsService.GetTelegraphList()
	if err != nil || len(telegraphs) == 0 {
		return
	}
	latest := telegraphs[0]

	p.mu.Lock()
	if latest.Content == p.lastTelegraphContent {
		p.mu.Unlock()
		return
	}
	p.lastTelegraphContent = latest.Content
	p.mu.Unlock()

	runtime.EventsEmit(p.ctx, EventTelegraphUpdate, latest)
}

// WatchedStock 获取盯盘股票的最新行情，未设置返回零值
func (p *RoomPusher) WatchedStock() models.Stock {
	p.mu.RLock()
	code := p.watchCode
	p.mu.RUnlock()

	if code == "" {
		return models.Stock{}
	}
	stocks, err := p.marketService.GetStockRealTimeData(code)
	if err != nil || len(stocks) == 0 {
		return models.Stock{}
	}
	return stocks[0]
}
