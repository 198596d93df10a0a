package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/run-bigpig/warroom/internal/adk"
	"github.com/run-bigpig/warroom/internal/adk/mcp"
	"github.com/run-bigpig/warroom/internal/adk/openai"
	"github.com/run-bigpig/warroom/internal/adk/tools"
	"github.com/run-bigpig/warroom/internal/logger"
	"github.com/run-bigpig/warroom/internal/models"
	"github.com/run-bigpig/warroom/internal/warroom"

	"github.com/google/uuid"
	adkagent "google.golang.org/adk/agent"
	"google.golang.org/adk/runner"
	adksession "google.golang.org/adk/session"
	"google.golang.org/genai"
)

var log = logger.New("Driver")

// 超时配置常量
const (
	AgentTimeout         = 90 * time.Second // 单个席位发言的最大时长
	ModelCreationTimeout = 10 * time.Second // 模型创建的最大时长
	turnPollInterval     = 500 * time.Millisecond
)

// 重试配置常量
const (
	MaxAgentRetries = 2                // 单个席位最大重试次数
	RetryBaseDelay  = 2 * time.Second  // 指数退避基础延迟
	RetryMaxDelay   = 15 * time.Second // 指数退避最大延迟
)

// 错误定义
var (
	ErrNoAIConfig = errors.New("未配置 AI 服务")
	ErrNoSeats    = errors.New("没有可用的席位")
)

// transcriptWindow 注入提示词的讨论记录条数上限
const transcriptWindow = 30

// isRetryableError 判断错误是否可重试。
// 超时、主动取消、配置错误不重试；网络错误、API 临时错误可重试。
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	msg := err.Error()
	if strings.Contains(msg, "config") || strings.Contains(msg, "not found") {
		return false
	}
	return true
}

// retryRun 带指数退避的重试包装。
// 在父 ctx 未取消的前提下，最多重试 maxRetries 次。
func retryRun(ctx context.Context, maxRetries int, fn func() (string, error)) (string, error) {
	result, err := fn()
	if err == nil || !isRetryableError(err) {
		return result, err
	}

	var lastErr error = err
	for i := 1; i <= maxRetries; i++ {
		delay := RetryBaseDelay * time.Duration(1<<(i-1))
		if delay > RetryMaxDelay {
			delay = RetryMaxDelay
		}
		log.Warn("retry %d/%d after %v, last error: %v", i, maxRetries, delay, lastErr)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}

		result, err = fn()
		if err == nil {
			log.Info("retry %d/%d succeeded", i, maxRetries)
			return result, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("重试 %d 次后仍失败: %w", maxRetries, lastErr)
}

// AIConfigResolver AI 配置解析器函数类型。
// 根据 AIConfigID 返回对应的 AI 配置，ID 为空或找不到时返回 nil。
type AIConfigResolver func(aiConfigID string) *models.AIConfig

// ProgressEvent 进度事件（细粒度实时反馈）
type ProgressEvent struct {
	Type     string `json:"type"`     // thinking/tool_call/tool_result/streaming/seat_start/seat_done/seat_error
	Seat     string `json:"seat"`     // 当前席位 ID
	SeatName string `json:"seatName"` // 当前席位名称
	Detail   string `json:"detail"`   // 工具名称或阶段描述
	Content  string `json:"content"`  // 流式文本片段
}

// ProgressCallback 进度回调函数类型
type ProgressCallback func(event ProgressEvent)

// Driver 席位驱动器。LLM 生成在调度器临界区之外完成，
// 生成结果通过总线 Submit 提交，由调度器统一裁决。
type Driver struct {
	session      *warroom.Session
	container    *Container
	modelFactory *adk.ModelFactory

	mu               sync.RWMutex
	toolRegistry     *tools.Registry
	mcpManager       *mcp.Manager
	aiConfigResolver AIConfigResolver
	defaultAIConfig  *models.AIConfig
	stock            *models.Stock
	position         *models.StockPosition
	progress         ProgressCallback
}

// NewDriver 创建席位驱动器
func NewDriver(sess *warroom.Session, container *Container, defaultAIConfig *models.AIConfig) *Driver {
	return &Driver{
		session:         sess,
		container:       container,
		modelFactory:    adk.NewModelFactory(),
		defaultAIConfig: defaultAIConfig,
	}
}

// SetToolRegistry 设置内置工具注册表
func (d *Driver) SetToolRegistry(registry *tools.Registry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.toolRegistry = registry
}

// SetMCPManager 设置 MCP 管理器
func (d *Driver) SetMCPManager(mgr *mcp.Manager) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mcpManager = mgr
}

// SetAIConfigResolver 设置 AI 配置解析器
func (d *Driver) SetAIConfigResolver(resolver AIConfigResolver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.aiConfigResolver = resolver
}

// SetMarketContext 设置当前讨论的标的与持仓
func (d *Driver) SetMarketContext(stock *models.Stock, position *models.StockPosition) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stock = stock
	d.position = position
}

// SetProgressCallback 设置进度回调
func (d *Driver) SetProgressCallback(cb ProgressCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.progress = cb
}

// RunIntroductions 驱动介绍阶段：按调度器给出的顺序逐席生成并提交介绍，
// 遇到提问阻塞或用户暂停时等待，直到进入自由讨论。
func (d *Driver) RunIntroductions(ctx context.Context) error {
	if d.resolveAIConfig("") == nil {
		return ErrNoAIConfig
	}
	if len(d.container.EnabledSeats()) == 0 {
		return ErrNoSeats
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch d.session.State() {
		case warroom.StateOpenDiscussion:
			log.Info("introductions complete")
			return nil
		case warroom.StateAwaitingAnswer, warroom.StatePaused:
			if err := d.wait(ctx); err != nil {
				return err
			}
			continue
		}

		seatID := d.session.NextIntroducer()
		if seatID == "" {
			// 状态刚刚变化，下一轮循环重新裁决
			if err := d.wait(ctx); err != nil {
				return err
			}
			continue
		}

		seat := d.container.GetSeat(seatID)
		if seat == nil || !seat.Enabled {
			return fmt.Errorf("席位 %s 未启用，介绍阶段无法继续", seatID)
		}

		content, err := d.generateIntro(ctx, seat)
		if err != nil {
			d.emit(ProgressEvent{Type: "seat_error", Seat: string(seatID), SeatName: seat.GetName(), Detail: err.Error()})
			return fmt.Errorf("席位 %s 介绍生成失败: %w", seatID, err)
		}

		draft := models.MessageDraft{
			From:       seatID,
			To:         models.ParticipantAll,
			Type:       models.TypeIntroduction,
			Content:    content,
			Importance: models.ImportanceMedium,
		}
		if seat.Config.IntroAsk != "" {
			draft.Ask = &models.AskDraft{Options: seat.Config.IntroOptions}
		}

		if _, err := d.session.Submit(draft); err != nil {
			if errors.Is(err, warroom.ErrRejected) {
				// 生成期间被用户打断或问题阻塞，等状态解除后重新走一轮
				log.Warn("intro of %s rejected: %v", seatID, err)
				if waitErr := d.wait(ctx); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		log.Debug("seat %s introduced, len=%d", seatID, len(content))
	}
}

// RespondToUser 自由讨论阶段：各席位依次对用户发言表态。
// 席位生成失败不中断其余席位；被拒绝说明用户再次持麦，立即让出。
func (d *Driver) RespondToUser(ctx context.Context, trigger string) error {
	seats := d.container.EnabledSeats()
	if len(seats) == 0 {
		return ErrNoSeats
	}

	for _, seat := range seats {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.session.State() == warroom.StatePaused {
			log.Info("session paused, yielding the floor")
			return nil
		}

		seatID := seat.Seat()
		d.emit(ProgressEvent{Type: "seat_start", Seat: string(seatID), SeatName: seat.GetName(), Detail: seat.GetRole()})

		content, err := d.generateDiscussion(ctx, seat, trigger)
		d.emit(ProgressEvent{Type: "seat_done", Seat: string(seatID), SeatName: seat.GetName()})
		if err != nil {
			d.emit(ProgressEvent{Type: "seat_error", Seat: string(seatID), SeatName: seat.GetName(), Detail: err.Error()})
			log.Error("seat %s failed after retries: %v", seatID, err)
			continue
		}

		_, err = d.session.Submit(models.MessageDraft{
			From:       seatID,
			To:         models.ParticipantAll,
			Type:       seat.MessageType(),
			Content:    content,
			Importance: models.ImportanceMedium,
		})
		if err != nil {
			if errors.Is(err, warroom.ErrRejected) {
				log.Info("seat %s rejected mid-round, yielding: %v", seatID, err)
				return nil
			}
			return err
		}
		log.Debug("seat %s spoke, len=%d", seatID, len(content))
	}
	return nil
}

// generateIntro 生成席位的介绍发言
func (d *Driver) generateIntro(ctx context.Context, seat *SeatAgent) (string, error) {
	builder, err := d.createBuilder(ctx, seat)
	if err != nil {
		return "", err
	}

	d.mu.RLock()
	stock, position := d.stock, d.position
	d.mu.RUnlock()

	agentInstance, err := builder.BuildIntroAgent(seat.Config, stock, position)
	if err != nil {
		return "", err
	}

	return retryRun(ctx, MaxAgentRetries, func() (string, error) {
		agentCtx, cancel := context.WithTimeout(ctx, AgentTimeout)
		defer cancel()
		return d.runSeatAgent(agentCtx, seat, agentInstance, "请开始你的介绍。")
	})
}

// generateDiscussion 生成席位的讨论发言
func (d *Driver) generateDiscussion(ctx context.Context, seat *SeatAgent, trigger string) (string, error) {
	builder, err := d.createBuilder(ctx, seat)
	if err != nil {
		return "", err
	}

	d.mu.RLock()
	stock, position := d.stock, d.position
	d.mu.RUnlock()

	transcript := formatTranscript(d.session.Transcript(), d.container)
	agentInstance, err := builder.BuildDiscussionAgent(seat.Config, stock, position, transcript, trigger)
	if err != nil {
		return "", err
	}

	return retryRun(ctx, MaxAgentRetries, func() (string, error) {
		agentCtx, cancel := context.WithTimeout(ctx, AgentTimeout)
		defer cancel()
		return d.runSeatAgent(agentCtx, seat, agentInstance, trigger)
	})
}

// createBuilder 为席位创建 Agent 构建器（含专属 AI 配置解析）
func (d *Driver) createBuilder(ctx context.Context, seat *SeatAgent) (*adk.SeatAgentBuilder, error) {
	aiConfig := d.resolveAIConfig(seat.Config.AIConfigID)
	if aiConfig == nil {
		return nil, ErrNoAIConfig
	}

	modelCtx, cancel := context.WithTimeout(ctx, ModelCreationTimeout)
	defer cancel()
	llm, err := d.modelFactory.CreateModel(modelCtx, aiConfig)
	if err != nil {
		return nil, fmt.Errorf("create model error: %w", err)
	}

	d.mu.RLock()
	registry, mcpMgr := d.toolRegistry, d.mcpManager
	d.mu.RUnlock()

	if mcpMgr != nil {
		return adk.NewSeatAgentBuilderFull(llm, registry, mcpMgr), nil
	}
	if registry != nil {
		return adk.NewSeatAgentBuilderWithTools(llm, registry), nil
	}
	return adk.NewSeatAgentBuilder(llm), nil
}

// resolveAIConfig 解析席位的 AI 配置，专属配置优先
func (d *Driver) resolveAIConfig(aiConfigID string) *models.AIConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.aiConfigResolver != nil && aiConfigID != "" {
		if resolved := d.aiConfigResolver(aiConfigID); resolved != nil {
			return resolved
		}
	}
	return d.defaultAIConfig
}

// runSeatAgent 通过 ADK runner 运行单个席位 Agent，流式累积文本
func (d *Driver) runSeatAgent(ctx context.Context, seat *SeatAgent, agentInstance adkagent.Agent, userText string) (string, error) {
	sessionService := adksession.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        "warroom",
		Agent:          agentInstance,
		SessionService: sessionService,
	})
	if err != nil {
		return "", err
	}

	sessionID := fmt.Sprintf("seat-%s-%s", seat.Seat(), uuid.NewString())
	_, err = sessionService.Create(ctx, &adksession.CreateRequest{
		AppName:   "warroom",
		UserID:    "user",
		SessionID: sessionID,
	})
	if err != nil {
		return "", fmt.Errorf("create session error: %w", err)
	}

	userMsg := &genai.Content{
		Role: "user",
		Parts: []*genai.Part{
			genai.NewPartFromText(userText),
		},
	}

	seatID := string(seat.Seat())
	var content string
	runCfg := adkagent.RunConfig{
		StreamingMode: adkagent.StreamingModeSSE,
	}
	for event, err := range r.Run(ctx, "user", sessionID, userMsg, runCfg) {
		if err != nil {
			return "", err
		}
		if event == nil || event.LLMResponse.Content == nil {
			continue
		}

		for _, part := range event.LLMResponse.Content.Parts {
			if part.Thought {
				continue
			}

			if part.FunctionCall != nil {
				d.emit(ProgressEvent{Type: "tool_call", Seat: seatID, SeatName: seat.GetName(), Detail: part.FunctionCall.Name})
			}
			if part.FunctionResponse != nil {
				d.emit(ProgressEvent{Type: "tool_result", Seat: seatID, SeatName: seat.GetName(), Detail: part.FunctionResponse.Name})
			}

			// 流式文本：只累积 Partial 片段，忽略最终聚合响应（避免重复）
			if part.Text != "" && event.LLMResponse.Partial {
				content += part.Text
				d.emit(ProgressEvent{Type: "streaming", Seat: seatID, SeatName: seat.GetName(), Content: part.Text})
			}
		}
	}

	return openai.FilterVendorToolCallMarkers(content), nil
}

// emit 发送进度事件
func (d *Driver) emit(event ProgressEvent) {
	d.mu.RLock()
	cb := d.progress
	d.mu.RUnlock()
	if cb != nil {
		cb(event)
	}
}

// wait 等待调度器状态变化的固定节拍
func (d *Driver) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(turnPollInterval):
		return nil
	}
}

// formatTranscript 把作战室消息格式化为提示词用的讨论记录，
// 只保留最近 transcriptWindow 条
func formatTranscript(messages []models.Message, container *Container) string {
	if len(messages) > transcriptWindow {
		messages = messages[len(messages)-transcriptWindow:]
	}
	if len(messages) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, msg := range messages {
		name := string(msg.From)
		switch msg.From {
		case models.ParticipantUser:
			name = "用户"
		case models.ParticipantSystem:
			name = "系统"
		default:
			if seat := container.GetSeat(msg.From); seat != nil {
				name = seat.GetName()
			}
		}
		sb.WriteString(fmt.Sprintf("- %s（%s）：%s\n", name, msg.Type, msg.Content))
	}
	return sb.String()
}
