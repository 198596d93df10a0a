// Package warroom 实现战情室的轮转消息总线：
// 仅追加的消息库、固定名册、回合调度器、问答配对与观察者推送。
package warroom

import "errors"

// 错误定义，均为可恢复的本地错误，不会使会话崩溃
var (
	ErrInvalidMessage     = errors.New("消息格式不合法")
	ErrUnknownParticipant = errors.New("未知的参与者")
	ErrRejected           = errors.New("当前回合不允许该发言")
	ErrQuestionNotFound   = errors.New("问题不存在或已关闭")
	ErrNotPaused          = errors.New("会话未处于暂停状态")
	ErrSessionClosed      = errors.New("会话已结束")
)
