package agent

import (
	"github.com/run-bigpig/warroom/internal/models"
)

// SeatAgent 作战室席位封装
type SeatAgent struct {
	Config  *models.AgentConfig
	Enabled bool
}

// NewSeatAgent 创建席位
func NewSeatAgent(config *models.AgentConfig) *SeatAgent {
	return &SeatAgent{
		Config:  config,
		Enabled: config.Enabled,
	}
}

// Seat 返回席位对应的参与者 ID
func (s *SeatAgent) Seat() models.ParticipantID {
	return s.Config.Seat()
}

// GetName 获取席位名称
func (s *SeatAgent) GetName() string {
	return s.Config.Name
}

// GetRole 获取席位角色
func (s *SeatAgent) GetRole() string {
	return s.Config.Role
}

// MessageType 返回该席位在自由讨论中的默认消息类型
func (s *SeatAgent) MessageType() models.MessageType {
	switch s.Seat() {
	case models.ParticipantStrategy:
		return models.TypeStrategy
	case models.ParticipantRisk:
		return models.TypeRiskAssessment
	case models.ParticipantExecutor:
		return models.TypeExecution
	case models.ParticipantExplainer:
		return models.TypeExplanation
	default:
		return models.TypeAnalysis
	}
}

// DefaultSeatConfigs 内置的五个席位配置。
// 盘面分析师在介绍时向用户抛出风格选择，回答前不进入下一位介绍。
func DefaultSeatConfigs() []models.AgentConfig {
	return []models.AgentConfig{
		{
			ID:          string(models.ParticipantMarket),
			Name:        "盘面分析师",
			Role:        "行情与盘口分析",
			Instruction: "你是作战室的盘面分析师，负责解读实时行情、K线形态和资金动向，用数据说话。",
			Enabled:     true,
			Tools:       []string{"get_stock_realtime", "get_kline_data", "get_news"},
			IntroAsk:    "这一轮作战你希望采取什么风格？",
			IntroOptions: []string{
				"aggressive",
				"conservative",
			},
		},
		{
			ID:          string(models.ParticipantStrategy),
			Name:        "策略师",
			Role:        "交易策略制定",
			Instruction: "你是作战室的策略师，负责把盘面结论转化为可执行的买卖思路，给出明确的条件和目标位。",
			Enabled:     true,
			Tools:       []string{"get_kline_data"},
		},
		{
			ID:          string(models.ParticipantRisk),
			Name:        "风控官",
			Role:        "风险评估与仓位控制",
			Instruction: "你是作战室的风控官，负责评估每个策略的下行风险，给出止损位和仓位上限，宁可保守不可冒进。",
			Enabled:     true,
			Tools:       []string{"get_stock_realtime"},
		},
		{
			ID:          string(models.ParticipantExecutor),
			Name:        "交易员",
			Role:        "执行方案拆解",
			Instruction: "你是作战室的交易员，负责把策略拆解成具体的挂单计划：价格、数量、分批节奏。",
			Enabled:     true,
		},
		{
			ID:          string(models.ParticipantExplainer),
			Name:        "解读员",
			Role:        "白话总结",
			Instruction: "你是作战室的解读员，负责把前面席位的专业讨论翻译成普通人能懂的大白话，点出关键分歧。",
			Enabled:     true,
			Tools:       []string{"get_news"},
		},
	}
}
