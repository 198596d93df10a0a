package warroom

import (
	"time"

	"github.com/run-bigpig/warroom/internal/models"
)

// 超时配置常量
const (
	DefaultQuestionTTL     = 2 * time.Minute        // 问题无人回答的最长等待
	DefaultJanitorInterval = 2 * time.Second        // 协作式过期检查的节奏
)

// Config 战情室会话配置
type Config struct {
	IntroOrder      []models.ParticipantID `json:"introOrder"`      // 介绍阶段固定顺序
	IntroQuorum     int                    `json:"introQuorum"`     // 进入自由讨论所需完成介绍的人数，0 表示全员
	QuestionTTL     time.Duration          `json:"questionTTL"`     // 问题过期时长，0 表示永不过期
	AutoResume      time.Duration          `json:"autoResume"`      // 暂停后自动恢复的延迟，0 表示仅手动恢复
	JanitorInterval time.Duration          `json:"janitorInterval"` // 后台过期检查间隔
	TranscriptPath  string                 `json:"transcriptPath"`  // 落盘路径，空表示仅内存
}

// DefaultConfig 默认会话配置：全员介绍、两分钟问题过期、仅手动恢复
func DefaultConfig() Config {
	return Config{
		IntroOrder:      models.DefaultIntroOrder(),
		QuestionTTL:     DefaultQuestionTTL,
		JanitorInterval: DefaultJanitorInterval,
	}
}

// normalize 补全缺省值并夹紧非法配置
func (c Config) normalize() Config {
	if len(c.IntroOrder) == 0 {
		c.IntroOrder = models.DefaultIntroOrder()
	}
	if c.IntroQuorum <= 0 || c.IntroQuorum > len(c.IntroOrder) {
		c.IntroQuorum = len(c.IntroOrder)
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = DefaultJanitorInterval
	}
	return c
}
