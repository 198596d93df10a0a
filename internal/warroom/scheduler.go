package warroom

import (
	"fmt"
	"sync"
	"time"

	"github.com/run-bigpig/warroom/internal/logger"
	"github.com/run-bigpig/warroom/internal/models"
)

var schedLog = logger.New("Scheduler")

// State 调度器对外状态
type State string

const (
	StateIntroduction   State = "introduction"    // 介绍阶段，按固定顺序发言
	StateAwaitingAnswer State = "awaiting_answer" // 有未回答的问题
	StateOpenDiscussion State = "open_discussion" // 自由讨论
	StatePaused         State = "paused"          // 被用户打断
)

// phase 调度器内部阶段。awaiting_answer 是派生状态：
// 介绍阶段由 introGate 表示，自由讨论阶段由追踪器的 pending 数表示，
// 因此问题解决后"回到调用时所在状态"天然成立。
type phase int

const (
	phaseIntroduction phase = iota
	phaseOpen
	phasePaused
)

// scheduler 回合调度器，唯一的序列化点。
// 消息库与名册的全部写入都发生在 mu 的临界区内。
type scheduler struct {
	store    *Store
	registry *Registry
	tracker  *Tracker
	cfg      Config
	clock    func() time.Time

	mu            sync.Mutex
	phase         phase
	resumeTo      phase                // 暂停前所处阶段
	introIndex    int                  // 下一位应当介绍的席位下标
	introGate     string               // 阻塞下一位介绍的问题 ID，空表示无阻塞
	interruptedBy models.ParticipantID // 触发暂停的参与者，空表示未暂停
	pausedAt      time.Time
}

func newScheduler(store *Store, registry *Registry, tracker *Tracker, cfg Config, clock func() time.Time) *scheduler {
	return &scheduler{
		store:    store,
		registry: registry,
		tracker:  tracker,
		cfg:      cfg,
		clock:    clock,
	}
}

// Submit 校验草稿并入库。被阻塞的参与者会立刻收到 ErrRejected（快速失败，不等待）。
func (s *scheduler) Submit(draft models.MessageDraft) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireDueLocked(s.clock())

	if err := s.validateLocked(draft); err != nil {
		return models.Message{}, err
	}

	if draft.Type == models.TypeAnswer {
		return s.submitAnswerLocked(draft)
	}

	switch draft.From {
	case models.ParticipantSystem:
		return s.store.Append(draft)
	case models.ParticipantUser:
		return s.submitUserLocked(draft)
	default:
		return s.submitAgentLocked(draft)
	}
}

// validateLocked 结构校验，任何失败都不产生副作用
func (s *scheduler) validateLocked(draft models.MessageDraft) error {
	if draft.From == "" || draft.Type == "" {
		return fmt.Errorf("%w: 缺少 from 或 type", ErrInvalidMessage)
	}
	if !s.registry.Has(draft.From) {
		return fmt.Errorf("%w: from=%s", ErrUnknownParticipant, draft.From)
	}
	if draft.To != "" && draft.To != models.ParticipantAll && !s.registry.Has(draft.To) {
		return fmt.Errorf("%w: to=%s", ErrUnknownParticipant, draft.To)
	}
	if draft.Type == models.TypeAnswer && draft.QuestionID == "" {
		return fmt.Errorf("%w: answer 消息缺少 questionId", ErrInvalidMessage)
	}
	if draft.From == models.ParticipantSystem && (draft.Ask != nil || draft.Type == models.TypeQuestion) {
		return fmt.Errorf("%w: system 不参与提问", ErrInvalidMessage)
	}
	return nil
}

// submitAnswerLocked 回答路径。过期/未知问题被拒绝且无任何副作用，
// 调用方应视 ErrQuestionNotFound 为无害空操作。
func (s *scheduler) submitAnswerLocked(draft models.MessageDraft) (models.Message, error) {
	if models.IsAgent(draft.From) && s.phase == phasePaused {
		return models.Message{}, fmt.Errorf("%w: 会话已暂停", ErrRejected)
	}

	q, err := s.tracker.Answer(draft.QuestionID, draft.Content)
	if err != nil {
		return models.Message{}, err
	}

	msg, err := s.store.Append(draft)
	if err != nil {
		return models.Message{}, err
	}

	s.resolveQuestionLocked(q)
	schedLog.Debug("question %s answered by %s", q.QuestionID, draft.From)
	return msg, nil
}

// submitUserLocked 用户路径。用户发言永远被接受；
// 自由讨论中的用户发言立即冻结全部专家（"hold on" 语义）。
func (s *scheduler) submitUserLocked(draft models.MessageDraft) (models.Message, error) {
	asks := draft.Ask != nil || draft.Type == models.TypeQuestion
	if asks {
		if qid, ok := s.tracker.Pending(draft.From); ok {
			return models.Message{}, fmt.Errorf("%w: 上一个问题 %s 尚未回答", ErrRejected, qid)
		}
	}

	var question *models.Question
	if asks {
		var options []string
		if draft.Ask != nil {
			options = draft.Ask.Options
		}
		q, err := s.tracker.Open(draft.From, options)
		if err != nil {
			return models.Message{}, err
		}
		question = &q
	}

	msg, err := s.store.append(draft, question)
	if err != nil {
		return models.Message{}, err
	}

	if s.phase == phaseOpen {
		s.pauseLocked(draft.From)
	}
	return msg, nil
}

// submitAgentLocked 专家路径，按阶段裁决
func (s *scheduler) submitAgentLocked(draft models.MessageDraft) (models.Message, error) {
	switch s.phase {
	case phasePaused:
		return models.Message{}, fmt.Errorf("%w: 会话已被 %s 暂停", ErrRejected, s.interruptedBy)
	case phaseIntroduction:
		return s.submitIntroductionLocked(draft)
	default:
		return s.submitDiscussionLocked(draft)
	}
}

// submitIntroductionLocked 介绍阶段：固定顺序，每人一条 introduction，
// 嵌入提问时阻塞下一位介绍，直到该问题被回答或过期
func (s *scheduler) submitIntroductionLocked(draft models.MessageDraft) (models.Message, error) {
	if draft.Type != models.TypeIntroduction {
		return models.Message{}, fmt.Errorf("%w: 介绍阶段只接受 introduction 消息", ErrRejected)
	}
	if s.introGate != "" {
		return models.Message{}, fmt.Errorf("%w: 等待问题 %s 被回答", ErrRejected, s.introGate)
	}
	if s.introIndex >= len(s.cfg.IntroOrder) {
		return models.Message{}, fmt.Errorf("%w: 介绍阶段已结束", ErrRejected)
	}
	if expected := s.cfg.IntroOrder[s.introIndex]; draft.From != expected {
		return models.Message{}, fmt.Errorf("%w: 当前轮到 %s 介绍", ErrRejected, expected)
	}

	var question *models.Question
	if draft.Ask != nil {
		q, err := s.tracker.Open(draft.From, draft.Ask.Options)
		if err != nil {
			return models.Message{}, err
		}
		question = &q
	}

	msg, err := s.store.append(draft, question)
	if err != nil {
		return models.Message{}, err
	}

	if question != nil {
		s.introGate = question.QuestionID
		s.registry.setState(draft.From, models.StateAwaitingAnswer)
	}
	s.introIndex++
	s.maybeOpenDiscussionLocked()
	return msg, nil
}

// submitDiscussionLocked 自由讨论阶段：无固定顺序，
// 仅阻止同一专家在上一问未决时再次提问
func (s *scheduler) submitDiscussionLocked(draft models.MessageDraft) (models.Message, error) {
	if draft.Type == models.TypeIntroduction {
		return models.Message{}, fmt.Errorf("%w: 讨论已开始，不再接受 introduction", ErrRejected)
	}

	asks := draft.Ask != nil || draft.Type == models.TypeQuestion
	if asks {
		if qid, ok := s.tracker.Pending(draft.From); ok {
			return models.Message{}, fmt.Errorf("%w: 上一个问题 %s 尚未回答", ErrRejected, qid)
		}
	}

	var question *models.Question
	if asks {
		var options []string
		if draft.Ask != nil {
			options = draft.Ask.Options
		}
		q, err := s.tracker.Open(draft.From, options)
		if err != nil {
			return models.Message{}, err
		}
		question = &q
	}

	msg, err := s.store.append(draft, question)
	if err != nil {
		return models.Message{}, err
	}

	if question != nil {
		s.registry.setState(draft.From, models.StateAwaitingAnswer)
	}
	return msg, nil
}

// resolveQuestionLocked 问题关闭（回答或过期）后的状态收敛
func (s *scheduler) resolveQuestionLocked(q models.Question) {
	if models.IsAgent(q.AskedBy) && s.phase != phasePaused {
		s.registry.setState(q.AskedBy, models.StateIdle)
	}
	if s.introGate == q.QuestionID {
		s.introGate = ""
		s.maybeOpenDiscussionLocked()
	}
}

// maybeOpenDiscussionLocked 介绍人数达到法定数且无阻塞问题时进入自由讨论
func (s *scheduler) maybeOpenDiscussionLocked() {
	if s.introIndex < s.cfg.IntroQuorum || s.introGate != "" {
		return
	}
	switch s.phase {
	case phaseIntroduction:
		s.phase = phaseOpen
		schedLog.Info("introduction complete (%d/%d), open discussion", s.introIndex, len(s.cfg.IntroOrder))
	case phasePaused:
		if s.resumeTo == phaseIntroduction {
			s.resumeTo = phaseOpen
		}
	}
}

// Interrupt 显式暂停。重复调用是空操作而非错误。
func (s *scheduler) Interrupt(by models.ParticipantID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseLocked(by)
}

// pauseLocked 冻结全部专家参与者（user/system 不受影响）
func (s *scheduler) pauseLocked(by models.ParticipantID) {
	if s.phase == phasePaused {
		return
	}
	s.resumeTo = s.phase
	s.phase = phasePaused
	s.interruptedBy = by
	s.pausedAt = s.clock()
	for _, id := range s.registry.Agents() {
		s.registry.setState(id, models.StatePaused)
	}
	schedLog.Info("paused by %s", by)
}

// Resume 显式恢复。未暂停时返回 ErrNotPaused 且不改变任何状态。
func (s *scheduler) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeLocked()
}

func (s *scheduler) resumeLocked() error {
	if s.phase != phasePaused {
		return ErrNotPaused
	}
	s.phase = s.resumeTo
	s.interruptedBy = ""
	for _, id := range s.registry.Agents() {
		if _, pending := s.tracker.Pending(id); pending {
			s.registry.setState(id, models.StateAwaitingAnswer)
		} else {
			s.registry.setState(id, models.StateIdle)
		}
	}
	schedLog.Info("resumed")
	return nil
}

// Tick 协作式维护入口：过期到点的问题，必要时自动恢复。
// 由会话的后台循环按节奏调用，也会在每次 Submit 时顺带执行过期检查。
func (s *scheduler) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireDueLocked(now)

	if s.cfg.AutoResume > 0 && s.phase == phasePaused && now.Sub(s.pausedAt) >= s.cfg.AutoResume {
		s.resumeLocked()
	}
}

// expireDueLocked 过期到点的问题：追加 system 通知并像收到回答一样解除阻塞，
// 避免沉默的用户让整个会话死锁
func (s *scheduler) expireDueLocked(now time.Time) {
	for _, q := range s.tracker.ExpireDue(now) {
		s.store.Append(models.MessageDraft{
			From:    models.ParticipantSystem,
			To:      models.ParticipantAll,
			Type:    models.TypeSystem,
			Content: fmt.Sprintf("%s 的问题超时未回答，按未回应处理", q.AskedBy),
		})
		s.resolveQuestionLocked(q)
		schedLog.Warn("question %s by %s expired", q.QuestionID, q.AskedBy)
	}
}

// State 返回对外状态。暂停优先；awaiting_answer 为派生状态。
func (s *scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case phasePaused:
		return StatePaused
	case phaseIntroduction:
		if s.introGate != "" {
			return StateAwaitingAnswer
		}
		return StateIntroduction
	default:
		if s.tracker.PendingCount() > 0 {
			return StateAwaitingAnswer
		}
		return StateOpenDiscussion
	}
}

// InterruptedBy 返回触发暂停的参与者，未暂停返回空
func (s *scheduler) InterruptedBy() models.ParticipantID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interruptedBy
}

// NextIntroducer 返回下一位应当介绍的席位，介绍阶段结束返回空
func (s *scheduler) NextIntroducer() models.ParticipantID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == phaseIntroduction && s.introGate == "" && s.introIndex < len(s.cfg.IntroOrder) {
		return s.cfg.IntroOrder[s.introIndex]
	}
	return ""
}
