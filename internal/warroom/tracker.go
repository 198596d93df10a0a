package warroom

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/run-bigpig/warroom/internal/models"
)

// Tracker 问答追踪器，保证问题与回答一一配对，并支持超时过期。
// 不变式：每个提问者同一时刻至多一个 pending 问题（与调度器共同保证）。
type Tracker struct {
	mu        sync.RWMutex
	questions map[string]*models.Question
	pendingBy map[models.ParticipantID]string // 提问者 -> pending 问题 ID
	ttl       time.Duration                   // 0 表示永不过期
	clock     func() time.Time
}

// NewTracker 创建问答追踪器
func NewTracker(ttl time.Duration, clock func() time.Time) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{
		questions: make(map[string]*models.Question),
		pendingBy: make(map[models.ParticipantID]string),
		ttl:       ttl,
		clock:     clock,
	}
}

// Open 开启一个 pending 问题。同一提问者已有 pending 问题时拒绝。
func (t *Tracker) Open(askedBy models.ParticipantID, options []string) (models.Question, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if qid, ok := t.pendingBy[askedBy]; ok {
		return models.Question{}, fmt.Errorf("%w: %s 已有未回答的问题 %s", ErrRejected, askedBy, qid)
	}

	q := &models.Question{
		QuestionID: uuid.NewString(),
		AskedBy:    askedBy,
		Options:    append([]string(nil), options...),
		Status:     models.QuestionPending,
		AskedAt:    t.clock().UnixMilli(),
	}
	t.questions[q.QuestionID] = q
	t.pendingBy[askedBy] = q.QuestionID
	return *q, nil
}

// Answer 回答问题。问题不存在或已关闭返回 ErrQuestionNotFound（调用方按无害空操作处理），
// 答案不在候选集内返回 ErrInvalidMessage，两者都不改变已有状态。
func (t *Tracker) Answer(questionID, text string) (models.Question, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	q, ok := t.questions[questionID]
	if !ok || q.Status != models.QuestionPending {
		return models.Question{}, fmt.Errorf("%w: %s", ErrQuestionNotFound, questionID)
	}
	if !q.AcceptsAnswer(text) {
		return models.Question{}, fmt.Errorf("%w: 答案 %q 不在候选集内", ErrInvalidMessage, text)
	}

	q.Status = models.QuestionAnswered
	q.Answer = text
	delete(t.pendingBy, q.AskedBy)
	return *q, nil
}

// Expire 将 pending 问题标记为过期，视作一次"未作回应"的隐式回答
func (t *Tracker) Expire(questionID string) (models.Question, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expireLocked(questionID)
}

func (t *Tracker) expireLocked(questionID string) (models.Question, error) {
	q, ok := t.questions[questionID]
	if !ok || q.Status != models.QuestionPending {
		return models.Question{}, fmt.Errorf("%w: %s", ErrQuestionNotFound, questionID)
	}
	q.Status = models.QuestionExpired
	delete(t.pendingBy, q.AskedBy)
	return *q, nil
}

// ExpireDue 检查并过期所有到期的 pending 问题，返回被过期的问题。
// 过期是协作式的：只在被调用时发生，精度取决于调用节奏。
func (t *Tracker) ExpireDue(now time.Time) []models.Question {
	if t.ttl <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []models.Question
	deadline := now.Add(-t.ttl).UnixMilli()
	for _, qid := range t.pendingBy {
		q := t.questions[qid]
		if q.AskedAt <= deadline {
			if snapshot, err := t.expireLocked(qid); err == nil {
				expired = append(expired, snapshot)
			}
		}
	}
	return expired
}

// Pending 返回指定提问者的 pending 问题 ID
func (t *Tracker) Pending(askedBy models.ParticipantID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	qid, ok := t.pendingBy[askedBy]
	return qid, ok
}

// PendingCount 返回 pending 问题数量
func (t *Tracker) PendingCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pendingBy)
}

// Get 查询问题快照
func (t *Tracker) Get(questionID string) (models.Question, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	q, ok := t.questions[questionID]
	if !ok {
		return models.Question{}, false
	}
	return *q, true
}
