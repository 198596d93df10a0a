package models

// ParticipantID 参与者标识，固定名册，会话期间不可增减
type ParticipantID string

const (
	ParticipantMarket    ParticipantID = "market"    // 行情分析师
	ParticipantStrategy  ParticipantID = "strategy"  // 策略师
	ParticipantRisk      ParticipantID = "risk"      // 风控官
	ParticipantExecutor  ParticipantID = "executor"  // 交易执行
	ParticipantExplainer ParticipantID = "explainer" // 解读员
	ParticipantUser      ParticipantID = "user"      // 老韭菜本人
	ParticipantSystem    ParticipantID = "system"    // 系统
)

// ParticipantAll 仅用于消息的 to 字段，表示广播
const ParticipantAll ParticipantID = "all"

// rosterOrder 固定名册（同时是介绍阶段的发言顺序，user/system 除外）
var rosterOrder = []ParticipantID{
	ParticipantMarket,
	ParticipantStrategy,
	ParticipantRisk,
	ParticipantExecutor,
	ParticipantExplainer,
	ParticipantUser,
	ParticipantSystem,
}

// Roster 返回固定名册的副本
func Roster() []ParticipantID {
	result := make([]ParticipantID, len(rosterOrder))
	copy(result, rosterOrder)
	return result
}

// DefaultIntroOrder 介绍阶段的固定发言顺序（不含 user/system）
func DefaultIntroOrder() []ParticipantID {
	return []ParticipantID{
		ParticipantMarket,
		ParticipantStrategy,
		ParticipantRisk,
		ParticipantExecutor,
		ParticipantExplainer,
	}
}

// IsRosterID 判断是否为名册内的参与者
func IsRosterID(id ParticipantID) bool {
	for _, item := range rosterOrder {
		if item == id {
			return true
		}
	}
	return false
}

// IsAgent 判断是否为专家参与者（非 user/system）
func IsAgent(id ParticipantID) bool {
	return IsRosterID(id) && id != ParticipantUser && id != ParticipantSystem
}

// ParticipantState 参与者状态
type ParticipantState string

const (
	StateIdle           ParticipantState = "idle"            // 空闲
	StateSpeaking       ParticipantState = "speaking"        // 发言中
	StateAwaitingAnswer ParticipantState = "awaiting_answer" // 等待提问被回答
	StatePaused         ParticipantState = "paused"          // 被用户打断暂停
)
