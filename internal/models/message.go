package models

// MessageType 消息类型
type MessageType string

const (
	TypeIntroduction   MessageType = "introduction"    // 介绍阶段自我介绍
	TypeAnalysis       MessageType = "analysis"        // 行情分析
	TypeStrategy       MessageType = "strategy"        // 策略观点
	TypeRiskAssessment MessageType = "risk_assessment" // 风险评估
	TypeExecution      MessageType = "execution"       // 执行报告
	TypeExplanation    MessageType = "explanation"     // 解读说明
	TypeUserInput      MessageType = "user_input"      // 用户发言
	TypeSystem         MessageType = "system"          // 系统通知
	TypeQuestion       MessageType = "question"        // 提问
	TypeAnswer         MessageType = "answer"          // 回答
)

// Importance 消息重要程度，仅做展示，不影响调度
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceMedium Importance = "medium"
	ImportanceHigh   Importance = "high"
)

// Message 战情室消息，一经入库不可变更
type Message struct {
	ID         int64         `json:"id"`
	From       ParticipantID `json:"from"`
	To         ParticipantID `json:"to"`
	Type       MessageType   `json:"type"`
	Content    string        `json:"content"`
	Timestamp  int64         `json:"timestamp"` // 毫秒时间戳，随 ID 单调不减
	Importance Importance    `json:"importance,omitempty"`
	Question   *Question     `json:"question,omitempty"`   // type == question 时携带
	QuestionID string        `json:"questionId,omitempty"` // type == answer 时指向被回答的问题
}

// MessageDraft 待提交的消息草稿，ID 与时间戳由消息库入库时分配
type MessageDraft struct {
	From       ParticipantID `json:"from"`
	To         ParticipantID `json:"to"`
	Type       MessageType   `json:"type"`
	Content    string        `json:"content"`
	Importance Importance    `json:"importance,omitempty"`
	Ask        *AskDraft     `json:"ask,omitempty"`        // 非空表示该消息向接收方提问
	QuestionID string        `json:"questionId,omitempty"` // type == answer 时必填
}

// AskDraft 草稿中嵌入的提问，introduction 与 question 类型消息可携带
type AskDraft struct {
	Options []string `json:"options,omitempty"` // 候选答案，空表示接受自由文本
}

// QuestionStatus 问题状态
type QuestionStatus string

const (
	QuestionPending  QuestionStatus = "pending"
	QuestionAnswered QuestionStatus = "answered"
	QuestionExpired  QuestionStatus = "expired"
)

// Question 待回答的问题，与回答一一配对
type Question struct {
	QuestionID string         `json:"questionId"`
	AskedBy    ParticipantID  `json:"askedBy"`
	Options    []string       `json:"options,omitempty"` // 空表示接受自由文本回答
	Status     QuestionStatus `json:"status"`
	Answer     string         `json:"answer,omitempty"` // 已回答时的答案文本
	AskedAt    int64          `json:"askedAt"`          // 毫秒时间戳
}

// AcceptsAnswer 判断答案文本是否在候选集内（无候选集时任意文本均可）
func (q *Question) AcceptsAnswer(text string) bool {
	if len(q.Options) == 0 {
		return true
	}
	for _, opt := range q.Options {
		if opt == text {
			return true
		}
	}
	return false
}
