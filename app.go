package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/run-bigpig/warroom/internal/adk/mcp"
	"github.com/run-bigpig/warroom/internal/adk/tools"
	"github.com/run-bigpig/warroom/internal/agent"
	"github.com/run-bigpig/warroom/internal/logger"
	"github.com/run-bigpig/warroom/internal/models"
	"github.com/run-bigpig/warroom/internal/pkg/paths"
	"github.com/run-bigpig/warroom/internal/services"
	"github.com/run-bigpig/warroom/internal/warroom"
)

var appLog = logger.New("App")

// warRoom 单个作战室的运行时句柄
type warRoom struct {
	session   *warroom.Session
	container *agent.Container
	driver    *agent.Driver
	pusher    *services.RoomPusher
	cancel    context.CancelFunc

	mu           sync.Mutex
	lastUserText string
}

// App Wails 应用，前端绑定的全部方法都挂在这里
type App struct {
	ctx context.Context

	manager       *warroom.Manager
	marketService *services.MarketService
	newsService   *services.NewsService
	toolRegistry  *tools.Registry
	mcpManager    *mcp.Manager

	mu              sync.RWMutex
	rooms           map[string]*warRoom
	aiConfigs       map[string]*models.AIConfig
	defaultAIConfig string
}

// NewApp 创建应用
func NewApp() *App {
	marketService := services.NewMarketService()
	newsService := services.NewNewsService()
	return &App{
		manager:       warroom.NewManager(),
		marketService: marketService,
		newsService:   newsService,
		toolRegistry:  tools.NewRegistry(marketService, newsService),
		mcpManager:    mcp.NewManager(),
		rooms:         make(map[string]*warRoom),
		aiConfigs:     make(map[string]*models.AIConfig),
	}
}

// startup Wails 启动回调
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	appLog.Info("app started, data dir: %s", paths.GetDataDir())
}

// shutdown Wails 退出回调，停掉全部作战室
func (a *App) shutdown(ctx context.Context) {
	a.mu.Lock()
	rooms := a.rooms
	a.rooms = make(map[string]*warRoom)
	a.mu.Unlock()

	for id, room := range rooms {
		room.cancel()
		room.pusher.Stop()
		appLog.Info("room %s stopped", id)
	}
	a.manager.CloseAll()
}

// SaveAIConfig 保存 AI 配置，首个配置自动设为默认
func (a *App) SaveAIConfig(cfg models.AIConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.aiConfigs[cfg.ID] = &cfg
	if a.defaultAIConfig == "" {
		a.defaultAIConfig = cfg.ID
	}
}

// SetDefaultAIConfig 设置默认 AI 配置
func (a *App) SetDefaultAIConfig(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.aiConfigs[id]; !ok {
		return fmt.Errorf("AI 配置 %s 不存在", id)
	}
	a.defaultAIConfig = id
	return nil
}

// GetAIConfigs 返回全部 AI 配置
func (a *App) GetAIConfigs() []models.AIConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	result := make([]models.AIConfig, 0, len(a.aiConfigs))
	for _, cfg := range a.aiConfigs {
		result = append(result, *cfg)
	}
	return result
}

// LoadMCPServers 加载 MCP 服务器配置
func (a *App) LoadMCPServers(configs []models.MCPServerConfig) error {
	return a.mcpManager.LoadConfigs(configs)
}

// TestMCPConnection 测试 MCP 服务器连接
func (a *App) TestMCPConnection(serverID string) *mcp.ServerStatus {
	return a.mcpManager.TestConnection(serverID)
}

// resolveAIConfig 按 ID 解析 AI 配置
func (a *App) resolveAIConfig(id string) *models.AIConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.aiConfigs[id]
}

// defaultAI 返回默认 AI 配置
func (a *App) defaultAI() *models.AIConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.aiConfigs[a.defaultAIConfig]
}

// StartWarRoom 开一间作战室：创建会话、装配席位驱动器与推送器，
// 并在后台启动介绍阶段。返回作战室 ID。
func (a *App) StartWarRoom(stockCode string) (string, error) {
	aiConfig := a.defaultAI()
	if aiConfig == nil {
		return "", agent.ErrNoAIConfig
	}

	cfg := warroom.DefaultConfig()
	transcriptDir := paths.EnsureCacheDir("transcripts")
	cfg.TranscriptPath = filepath.Join(transcriptDir, uuid.NewString()+".jsonl")

	sess, err := a.manager.Create(cfg)
	if err != nil {
		return "", err
	}

	container := agent.NewContainer()
	container.LoadSeats(agent.DefaultSeatConfigs())

	driver := agent.NewDriver(sess, container, aiConfig)
	driver.SetToolRegistry(a.toolRegistry)
	driver.SetMCPManager(a.mcpManager)
	driver.SetAIConfigResolver(a.resolveAIConfig)

	if stockCode != "" {
		if stocks, err := a.marketService.GetStockRealTimeData(stockCode); err == nil && len(stocks) > 0 {
			driver.SetMarketContext(&stocks[0], nil)
		} else if err != nil {
			appLog.Warn("fetch stock %s failed: %v", stockCode, err)
		}
	}

	pusher := services.NewRoomPusher(sess, a.marketService, a.newsService)
	pusher.SetWatchCode(stockCode)

	roomCtx, cancel := context.WithCancel(context.Background())
	room := &warRoom{
		session:   sess,
		container: container,
		driver:    driver,
		pusher:    pusher,
		cancel:    cancel,
	}

	a.mu.Lock()
	a.rooms[sess.ID] = room
	a.mu.Unlock()

	sess.Start()
	pusher.Start(a.ctx)

	go func() {
		if err := driver.RunIntroductions(roomCtx); err != nil && roomCtx.Err() == nil {
			appLog.Error("room %s introductions failed: %v", sess.ID, err)
		}
	}()

	appLog.Info("war room %s started, watching %s", sess.ID, stockCode)
	return sess.ID, nil
}

// getRoom 查找作战室
func (a *App) getRoom(roomID string) (*warRoom, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	room, ok := a.rooms[roomID]
	if !ok {
		return nil, warroom.ErrSessionClosed
	}
	return room, nil
}

// SendUserMessage 用户发言。自由讨论中这会立即冻结全部席位（"等等"语义），
// 恢复后席位们才会围绕这条发言表态。
func (a *App) SendUserMessage(roomID, text string) (models.Message, error) {
	room, err := a.getRoom(roomID)
	if err != nil {
		return models.Message{}, err
	}

	msg, err := room.session.Submit(models.MessageDraft{
		From:    models.ParticipantUser,
		To:      models.ParticipantAll,
		Type:    models.TypeUserInput,
		Content: text,
	})
	if err != nil {
		return models.Message{}, err
	}

	room.mu.Lock()
	room.lastUserText = text
	room.mu.Unlock()
	return msg, nil
}

// InterruptWarRoom 用户显式打断
func (a *App) InterruptWarRoom(roomID string) error {
	room, err := a.getRoom(roomID)
	if err != nil {
		return err
	}
	room.session.Interrupt(models.ParticipantUser)
	return nil
}

// ResumeWarRoom 恢复讨论。若用户在暂停期间有发言，席位们会在后台依次回应。
func (a *App) ResumeWarRoom(roomID string) error {
	room, err := a.getRoom(roomID)
	if err != nil {
		return err
	}
	if err := room.session.Resume(); err != nil {
		return err
	}

	room.mu.Lock()
	trigger := room.lastUserText
	room.lastUserText = ""
	room.mu.Unlock()

	if trigger != "" && room.session.State() == warroom.StateOpenDiscussion {
		go func() {
			if err := room.driver.RespondToUser(context.Background(), trigger); err != nil {
				appLog.Error("room %s respond failed: %v", roomID, err)
			}
		}()
	}
	return nil
}

// AnswerQuestion 用户回答某个待决问题
func (a *App) AnswerQuestion(roomID, questionID, text string) (models.Message, error) {
	room, err := a.getRoom(roomID)
	if err != nil {
		return models.Message{}, err
	}
	return room.session.Answer(questionID, text)
}

// GetHistory 拉取 lastID 之后的全部消息（重连续传用）
func (a *App) GetHistory(roomID string, lastID int64) ([]models.Message, error) {
	room, err := a.getRoom(roomID)
	if err != nil {
		return nil, err
	}
	return room.session.ReadSince(lastID), nil
}

// RoomState 作战室状态快照
type RoomState struct {
	State        string                                           `json:"state"`
	Participants map[models.ParticipantID]models.ParticipantState `json:"participants"`
	NextSpeaker  models.ParticipantID                             `json:"nextSpeaker"`
	PausedBy     models.ParticipantID                             `json:"pausedBy,omitempty"`
}

// GetRoomState 获取作战室状态
func (a *App) GetRoomState(roomID string) (RoomState, error) {
	room, err := a.getRoom(roomID)
	if err != nil {
		return RoomState{}, err
	}
	return RoomState{
		State:        string(room.session.State()),
		Participants: room.session.Participants(),
		NextSpeaker:  room.session.NextIntroducer(),
		PausedBy:     room.session.InterruptedBy(),
	}, nil
}

// CloseWarRoom 关闭作战室
func (a *App) CloseWarRoom(roomID string) {
	a.mu.Lock()
	room, ok := a.rooms[roomID]
	if ok {
		delete(a.rooms, roomID)
	}
	a.mu.Unlock()

	if !ok {
		return
	}
	room.cancel()
	room.pusher.Stop()
	a.manager.Close(roomID)
	appLog.Info("war room %s closed", roomID)
}

// GetStockRealTimeData 实时行情透传
func (a *App) GetStockRealTimeData(codes []string) ([]models.Stock, error) {
	return a.marketService.GetStockRealTimeData(codes...)
}

// GetKLineData K线透传
func (a *App) GetKLineData(code, period string, days int) ([]models.KLineData, error) {
	return a.marketService.GetKLineData(code, period, days)
}

// GetMarketIndices 大盘指数透传
func (a *App) GetMarketIndices() ([]models.MarketIndex, error) {
	return a.marketService.GetMarketIndices()
}

// GetTelegraphList 财联社电报透传
func (a *App) GetTelegraphList() ([]models.Telegraph, error) {
	return a.newsService.GetTelegraphList()
}
