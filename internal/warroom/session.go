package warroom

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/run-bigpig/warroom/internal/logger"
	"github.com/run-bigpig/warroom/internal/models"
)

var sessionLog = logger.New("Session")

// Session 一次战情室会话。显式对象，无任何包级可变状态，
// 并发会话只需各自构造独立实例。
type Session struct {
	ID string

	cfg      Config
	store    *Store
	registry *Registry
	tracker  *Tracker
	sched    *scheduler
	hub      *Hub
	wal      *TranscriptLog
	clock    func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSession 创建会话
func NewSession(cfg Config) (*Session, error) {
	return NewSessionWithClock(cfg, time.Now)
}

// NewSessionWithClock 创建会话并注入时钟，测试用
func NewSessionWithClock(cfg Config, clock func() time.Time) (*Session, error) {
	cfg = cfg.normalize()

	store := NewStore()
	store.SetClock(clock)

	var wal *TranscriptLog
	if cfg.TranscriptPath != "" {
		var err error
		wal, err = OpenTranscript(cfg.TranscriptPath)
		if err != nil {
			return nil, fmt.Errorf("打开战况记录失败: %w", err)
		}
		if err := store.AttachTranscript(wal); err != nil {
			wal.Close()
			return nil, err
		}
	}

	registry := NewRegistry(models.Roster())
	tracker := NewTracker(cfg.QuestionTTL, clock)
	hub := newHub(store)
	store.SetNotify(hub.wake)

	s := &Session{
		ID:       uuid.NewString(),
		cfg:      cfg,
		store:    store,
		registry: registry,
		tracker:  tracker,
		sched:    newScheduler(store, registry, tracker, cfg, clock),
		hub:      hub,
		wal:      wal,
		clock:    clock,
		stopChan: make(chan struct{}),
	}
	sessionLog.Info("session %s created, intro quorum %d/%d", s.ID, cfg.IntroQuorum, len(cfg.IntroOrder))
	return s, nil
}

// Start 启动后台维护循环：协作式过期检查与可选的自动恢复
func (s *Session) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.JanitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.sched.Tick(s.clock())
			}
		}
	}()
}

// Stop 结束会话并释放资源，幂等
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
		if s.wal != nil {
			if err := s.wal.Close(); err != nil {
				sessionLog.Error("close transcript error: %v", err)
			}
		}
		sessionLog.Info("session %s stopped", s.ID)
	})
}

// Submit 提交消息草稿，见调度器的裁决规则
func (s *Session) Submit(draft models.MessageDraft) (models.Message, error) {
	return s.sched.Submit(draft)
}

// Interrupt 显式暂停（"hold on"），重复调用为空操作
func (s *Session) Interrupt(by models.ParticipantID) {
	s.sched.Interrupt(by)
}

// Resume 显式恢复讨论，未暂停时返回 ErrNotPaused
func (s *Session) Resume() error {
	return s.sched.Resume()
}

// Answer 以用户身份回答指定问题的便捷入口
func (s *Session) Answer(questionID, text string) (models.Message, error) {
	return s.Submit(models.MessageDraft{
		From:       models.ParticipantUser,
		To:         models.ParticipantAll,
		Type:       models.TypeAnswer,
		Content:    text,
		QuestionID: questionID,
	})
}

// ReadSince 返回 ID 大于 lastID 的全部消息
func (s *Session) ReadSince(lastID int64) []models.Message {
	return s.store.ReadSince(lastID)
}

// Transcript 返回完整战况记录
func (s *Session) Transcript() []models.Message {
	return s.store.All()
}

// Subscribe 订阅新消息，lastID 为上次已读游标（首次订阅传 -1）
func (s *Session) Subscribe(lastID int64) *Subscription {
	return s.hub.Subscribe(lastID)
}

// State 返回调度器状态
func (s *Session) State() State {
	return s.sched.State()
}

// ParticipantState 查询参与者状态
func (s *Session) ParticipantState(id models.ParticipantID) (models.ParticipantState, error) {
	return s.registry.State(id)
}

// Participants 返回全部参与者状态快照
func (s *Session) Participants() map[models.ParticipantID]models.ParticipantState {
	return s.registry.Snapshot()
}

// PendingQuestion 返回指定提问者的 pending 问题
func (s *Session) PendingQuestion(askedBy models.ParticipantID) (models.Question, bool) {
	qid, ok := s.tracker.Pending(askedBy)
	if !ok {
		return models.Question{}, false
	}
	return s.tracker.Get(qid)
}

// Question 查询问题快照
func (s *Session) Question(questionID string) (models.Question, bool) {
	return s.tracker.Get(questionID)
}

// NextIntroducer 返回下一位应当介绍的席位，介绍阶段之外返回空
func (s *Session) NextIntroducer() models.ParticipantID {
	return s.sched.NextIntroducer()
}

// InterruptedBy 返回触发暂停的参与者，未暂停返回空
func (s *Session) InterruptedBy() models.ParticipantID {
	return s.sched.InterruptedBy()
}

// ExpireDue 立即执行一次协作式维护，测试与嵌入方使用
func (s *Session) ExpireDue(now time.Time) {
	s.sched.Tick(now)
}
