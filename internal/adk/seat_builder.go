package adk

import (
	"fmt"
	"strings"
	"time"

	"github.com/run-bigpig/warroom/internal/adk/mcp"
	"github.com/run-bigpig/warroom/internal/adk/tools"
	"github.com/run-bigpig/warroom/internal/models"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/tool"
)

// SeatAgentBuilder 作战室席位 Agent 构建器
type SeatAgentBuilder struct {
	llm          model.LLM
	toolRegistry *tools.Registry
	mcpManager   *mcp.Manager
}

// NewSeatAgentBuilder 创建席位 Agent 构建器
func NewSeatAgentBuilder(llm model.LLM) *SeatAgentBuilder {
	return &SeatAgentBuilder{llm: llm}
}

// NewSeatAgentBuilderWithTools 创建带工具的席位 Agent 构建器
func NewSeatAgentBuilderWithTools(llm model.LLM, registry *tools.Registry) *SeatAgentBuilder {
	return &SeatAgentBuilder{llm: llm, toolRegistry: registry}
}

// NewSeatAgentBuilderFull 创建完整配置的席位 Agent 构建器
func NewSeatAgentBuilderFull(llm model.LLM, registry *tools.Registry, mcpMgr *mcp.Manager) *SeatAgentBuilder {
	return &SeatAgentBuilder{llm: llm, toolRegistry: registry, mcpManager: mcpMgr}
}

// BuildIntroAgent 构建自我介绍阶段的 Agent
func (b *SeatAgentBuilder) BuildIntroAgent(config *models.AgentConfig, stock *models.Stock, position *models.StockPosition) (agent.Agent, error) {
	instruction := b.buildBaseContext(config, stock, position)

	instruction += `
现在是作战室的开场介绍环节，轮到你发言。
请用100字以内介绍你自己：你的职责、你盯的指标、你在本次讨论中会关注什么。`

	if config.IntroAsk != "" {
		instruction += fmt.Sprintf(`
介绍之后，向用户提出这个问题：%s
备选项：%s
只陈述问题和选项，不要替用户回答。`, config.IntroAsk, strings.Join(config.IntroOptions, " / "))
	}

	return b.newAgent(config, instruction)
}

// BuildDiscussionAgent 构建自由讨论阶段的 Agent
// transcript 是作战室已有的讨论记录，trigger 是触发本次发言的内容
func (b *SeatAgentBuilder) BuildDiscussionAgent(config *models.AgentConfig, stock *models.Stock, position *models.StockPosition, transcript string, trigger string) (agent.Agent, error) {
	instruction := b.buildBaseContext(config, stock, position)

	if transcript != "" {
		instruction += fmt.Sprintf(`
--- 作战室讨论记录 ---
%s
---
`, transcript)
	}

	instruction += fmt.Sprintf(`
触发发言的内容: %s

请站在你的职责角度发表看法，可以赞同、补充或反驳其他席位的观点。回复控制在150字以内。`, trigger)

	return b.newAgent(config, instruction)
}

// newAgent 按配置组装 llmagent
func (b *SeatAgentBuilder) newAgent(config *models.AgentConfig, instruction string) (agent.Agent, error) {
	var agentTools []tool.Tool
	if b.toolRegistry != nil && len(config.Tools) > 0 {
		agentTools = b.toolRegistry.GetTools(config.Tools)
	}

	var toolsets []tool.Toolset
	if b.mcpManager != nil && len(config.MCPServers) > 0 {
		toolsets = b.mcpManager.GetToolsetsByIDs(config.MCPServers)
	}

	return llmagent.New(llmagent.Config{
		Name:        config.ID,
		Model:       b.llm,
		Description: config.Role,
		Instruction: instruction,
		Tools:       agentTools,
		Toolsets:    toolsets,
	})
}

// buildBaseContext 构建席位通用的上下文前缀
func (b *SeatAgentBuilder) buildBaseContext(config *models.AgentConfig, stock *models.Stock, position *models.StockPosition) string {
	baseInstruction := config.Instruction
	if baseInstruction == "" {
		baseInstruction = fmt.Sprintf("你是一位%s，名字是%s。", config.Role, config.Name)
	}

	toolsDescription := b.buildToolsDescription(config)

	now := time.Now()
	prompt := fmt.Sprintf(`%s
%s
当前时间: %s
市场状态: %s
`, baseInstruction, toolsDescription, now.Format("2006-01-02 15:04:05"), marketStatus(now))

	if stock != nil {
		prompt += fmt.Sprintf(`
股票: %s (%s)
当前价格: %.2f
涨跌幅: %.2f%%
`, stock.Symbol, stock.Name, stock.Price, stock.ChangePercent)
	}

	if stock != nil && position != nil && position.Shares > 0 {
		marketValue := float64(position.Shares) * stock.Price
		costAmount := float64(position.Shares) * position.CostPrice
		profitLoss := marketValue - costAmount
		profitPercent := 0.0
		if costAmount > 0 {
			profitPercent = (profitLoss / costAmount) * 100
		}
		prompt += fmt.Sprintf(`
用户持仓: %d股，成本价 %.2f
持仓市值: %.2f，盈亏: %.2f (%.2f%%)
`, position.Shares, position.CostPrice, marketValue, profitLoss, profitPercent)
	}

	return prompt
}

// marketStatus 判断 A 股盘中状态（9:30-11:30, 13:00-15:00，周一至周五）
func marketStatus(now time.Time) string {
	weekday := now.Weekday()
	currentMinutes := now.Hour()*60 + now.Minute()

	switch {
	case weekday == time.Saturday || weekday == time.Sunday:
		return "休市（周末）"
	case currentMinutes >= 9*60+30 && currentMinutes <= 11*60+30:
		return "盘中（上午交易时段）"
	case currentMinutes >= 13*60 && currentMinutes <= 15*60:
		return "盘中（下午交易时段）"
	case currentMinutes < 9*60+30:
		return "盘前"
	case currentMinutes > 15*60:
		return "盘后"
	default:
		return "午间休市"
	}
}

// buildToolsDescription 构建可用工具说明
func (b *SeatAgentBuilder) buildToolsDescription(config *models.AgentConfig) string {
	var toolDescriptions []string

	if b.toolRegistry != nil && len(config.Tools) > 0 {
		toolInfos := b.toolRegistry.GetToolInfosByNames(config.Tools)
		for _, info := range toolInfos {
			toolDescriptions = append(toolDescriptions, fmt.Sprintf("- %s: %s", info.Name, info.Description))
		}
	}

	if b.mcpManager != nil && len(config.MCPServers) > 0 {
		mcpTools := b.mcpManager.GetToolInfosByServerIDs(config.MCPServers)
		for _, info := range mcpTools {
			toolDescriptions = append(toolDescriptions, fmt.Sprintf("- %s: %s (来自 %s)", info.Name, info.Description, info.ServerName))
		}
	}

	if len(toolDescriptions) == 0 {
		return ""
	}

	result := "\n可用工具:\n"
	for _, desc := range toolDescriptions {
		result += desc + "\n"
	}
	return result
}
