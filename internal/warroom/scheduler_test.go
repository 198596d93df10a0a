package warroom

import (
	"errors"
	"testing"
	"time"

	"github.com/run-bigpig/warroom/internal/models"
)

// newTestScheduler 按给定配置组装一套调度器及其依赖
func newTestScheduler(cfg Config) (*scheduler, *Store, *Registry, *Tracker, *fakeClock) {
	cfg = cfg.normalize()
	clock := newFakeClock()
	store := NewStore()
	store.SetClock(clock.Now)
	registry := NewRegistry(models.Roster())
	tracker := NewTracker(cfg.QuestionTTL, clock.Now)
	sched := newScheduler(store, registry, tracker, cfg, clock.Now)
	return sched, store, registry, tracker, clock
}

// runIntroductions 让全部席位完成无提问的介绍，进入自由讨论
func runIntroductions(t *testing.T, sched *scheduler, cfg Config) {
	t.Helper()
	for _, id := range cfg.normalize().IntroOrder {
		if _, err := sched.Submit(models.MessageDraft{
			From:    id,
			Type:    models.TypeIntroduction,
			Content: "大家好，我是" + string(id),
		}); err != nil {
			t.Fatalf("%s 介绍失败: %v", id, err)
		}
	}
	if st := sched.State(); st != StateOpenDiscussion {
		t.Fatalf("介绍完成后期望 open_discussion，实际 %s", st)
	}
}

// TestSchedulerIntroduction 测试介绍阶段的固定顺序
func TestSchedulerIntroduction(t *testing.T) {
	t.Run("乱序介绍被拒绝", func(t *testing.T) {
		sched, _, _, _, _ := newTestScheduler(DefaultConfig())
		if _, err := sched.Submit(models.MessageDraft{
			From: models.ParticipantStrategy, Type: models.TypeIntroduction, Content: "抢话",
		}); !errors.Is(err, ErrRejected) {
			t.Errorf("轮到 market 时 strategy 介绍期望 ErrRejected，实际 %v", err)
		}
		if next := sched.NextIntroducer(); next != models.ParticipantMarket {
			t.Errorf("下一位应为 market，实际 %s", next)
		}
	})

	t.Run("介绍阶段只接受introduction类型", func(t *testing.T) {
		sched, _, _, _, _ := newTestScheduler(DefaultConfig())
		if _, err := sched.Submit(models.MessageDraft{
			From: models.ParticipantMarket, Type: models.TypeAnalysis, Content: "还没介绍就分析",
		}); !errors.Is(err, ErrRejected) {
			t.Errorf("期望 ErrRejected，实际 %v", err)
		}
	})

	t.Run("全员依次介绍后进入自由讨论", func(t *testing.T) {
		cfg := DefaultConfig()
		sched, store, _, _, _ := newTestScheduler(cfg)
		runIntroductions(t, sched, cfg)

		if store.Len() != 5 {
			t.Errorf("期望 5 条介绍消息，实际 %d", store.Len())
		}
		// 讨论开始后不再接受 introduction
		if _, err := sched.Submit(models.MessageDraft{
			From: models.ParticipantMarket, Type: models.TypeIntroduction, Content: "再来一次",
		}); !errors.Is(err, ErrRejected) {
			t.Errorf("重复介绍期望 ErrRejected，实际 %v", err)
		}
	})

	t.Run("达到法定人数即提前开放讨论", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.IntroQuorum = 2
		sched, _, _, _, _ := newTestScheduler(cfg)

		for _, id := range []models.ParticipantID{models.ParticipantMarket, models.ParticipantStrategy} {
			if _, err := sched.Submit(models.MessageDraft{
				From: id, Type: models.TypeIntroduction, Content: "介绍",
			}); err != nil {
				t.Fatalf("%s 介绍失败: %v", id, err)
			}
		}
		if st := sched.State(); st != StateOpenDiscussion {
			t.Errorf("两人介绍后期望 open_discussion，实际 %s", st)
		}
	})
}

// TestSchedulerIntroductionGate 测试介绍中嵌入提问对下一位的阻塞
func TestSchedulerIntroductionGate(t *testing.T) {
	sched, _, registry, _, _ := newTestScheduler(DefaultConfig())

	msg, err := sched.Submit(models.MessageDraft{
		From:    models.ParticipantMarket,
		To:      models.ParticipantUser,
		Type:    models.TypeIntroduction,
		Content: "今天盘面震荡，您想激进还是保守？",
		Ask:     &models.AskDraft{Options: []string{"aggressive", "conservative"}},
	})
	if err != nil {
		t.Fatalf("带提问的介绍失败: %v", err)
	}
	if msg.Question == nil || msg.Question.Status != models.QuestionPending {
		t.Fatalf("入库消息应携带 pending 问题快照: %+v", msg.Question)
	}

	if st := sched.State(); st != StateAwaitingAnswer {
		t.Errorf("提问未决时期望 awaiting_answer，实际 %s", st)
	}
	if st, _ := registry.State(models.ParticipantMarket); st != models.StateAwaitingAnswer {
		t.Errorf("提问者状态期望 awaiting_answer，实际 %s", st)
	}

	// 问题未决时下一位不得介绍
	if _, err := sched.Submit(models.MessageDraft{
		From: models.ParticipantStrategy, Type: models.TypeIntroduction, Content: "我来了",
	}); !errors.Is(err, ErrRejected) {
		t.Errorf("阻塞期间 strategy 介绍期望 ErrRejected，实际 %v", err)
	}

	// 候选集外的回答被拒绝，不解除阻塞
	if _, err := sched.Submit(models.MessageDraft{
		From: models.ParticipantUser, Type: models.TypeAnswer,
		QuestionID: msg.Question.QuestionID, Content: "躺平",
	}); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("候选集外回答期望 ErrInvalidMessage，实际 %v", err)
	}
	if st := sched.State(); st != StateAwaitingAnswer {
		t.Errorf("非法回答不应解除阻塞，实际 %s", st)
	}

	// 合法回答后回到介绍阶段，轮到 strategy
	if _, err := sched.Submit(models.MessageDraft{
		From: models.ParticipantUser, Type: models.TypeAnswer,
		QuestionID: msg.Question.QuestionID, Content: "aggressive",
	}); err != nil {
		t.Fatalf("回答失败: %v", err)
	}
	if st := sched.State(); st != StateIntroduction {
		t.Errorf("回答后期望回到 introduction，实际 %s", st)
	}
	if next := sched.NextIntroducer(); next != models.ParticipantStrategy {
		t.Errorf("下一位应为 strategy，实际 %s", next)
	}
	if st, _ := registry.State(models.ParticipantMarket); st != models.StateIdle {
		t.Errorf("提问者回答后应回到空闲，实际 %s", st)
	}
}

// TestSchedulerOpenDiscussion 测试自由讨论阶段
func TestSchedulerOpenDiscussion(t *testing.T) {
	cfg := DefaultConfig()
	sched, _, registry, _, _ := newTestScheduler(cfg)
	runIntroductions(t, sched, cfg)

	t.Run("无固定顺序任意发言", func(t *testing.T) {
		drafts := []models.MessageDraft{
			{From: models.ParticipantRisk, Type: models.TypeRiskAssessment, Content: "仓位过重"},
			{From: models.ParticipantMarket, Type: models.TypeAnalysis, Content: "量能萎缩"},
			{From: models.ParticipantExecutor, Type: models.TypeExecution, Content: "已挂单"},
		}
		for _, d := range drafts {
			if _, err := sched.Submit(d); err != nil {
				t.Errorf("%s 发言失败: %v", d.From, err)
			}
		}
	})

	t.Run("专家提问进入awaiting且不得重复提问", func(t *testing.T) {
		msg, err := sched.Submit(models.MessageDraft{
			From: models.ParticipantExplainer, To: models.ParticipantUser,
			Type: models.TypeQuestion, Content: "需要我展开讲讲吗？",
		})
		if err != nil {
			t.Fatalf("提问失败: %v", err)
		}
		if st := sched.State(); st != StateAwaitingAnswer {
			t.Errorf("提问未决时期望 awaiting_answer，实际 %s", st)
		}

		if _, err := sched.Submit(models.MessageDraft{
			From: models.ParticipantExplainer, Type: models.TypeQuestion, Content: "再问一个",
		}); !errors.Is(err, ErrRejected) {
			t.Errorf("上一问未决时再提问期望 ErrRejected，实际 %v", err)
		}

		// 其他专家的普通发言不受他人提问影响
		if _, err := sched.Submit(models.MessageDraft{
			From: models.ParticipantStrategy, Type: models.TypeStrategy, Content: "建议网格",
		}); err != nil {
			t.Errorf("无关专家发言失败: %v", err)
		}

		if _, err := sched.Submit(models.MessageDraft{
			From: models.ParticipantUser, Type: models.TypeAnswer,
			QuestionID: msg.Question.QuestionID, Content: "讲讲吧",
		}); err != nil {
			t.Fatalf("回答失败: %v", err)
		}
		if st := sched.State(); st != StateOpenDiscussion {
			t.Errorf("回答后期望回到 open_discussion，实际 %s", st)
		}
		if st, _ := registry.State(models.ParticipantExplainer); st != models.StateIdle {
			t.Errorf("提问者应回到空闲，实际 %s", st)
		}
	})

	t.Run("结构校验", func(t *testing.T) {
		if _, err := sched.Submit(models.MessageDraft{
			From: "黄牛", Type: models.TypeAnalysis, Content: "内幕消息",
		}); !errors.Is(err, ErrUnknownParticipant) {
			t.Errorf("名册外参与者期望 ErrUnknownParticipant，实际 %v", err)
		}
		if _, err := sched.Submit(models.MessageDraft{
			From: models.ParticipantUser, Type: models.TypeAnswer, Content: "没有问题ID",
		}); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("answer 缺 questionId 期望 ErrInvalidMessage，实际 %v", err)
		}
		if _, err := sched.Submit(models.MessageDraft{
			From: models.ParticipantSystem, Type: models.TypeQuestion, Content: "系统提问",
		}); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("system 提问期望 ErrInvalidMessage，实际 %v", err)
		}
	})
}

// TestSchedulerPauseResume 测试用户打断与恢复
func TestSchedulerPauseResume(t *testing.T) {
	cfg := DefaultConfig()
	sched, _, registry, _, _ := newTestScheduler(cfg)
	runIntroductions(t, sched, cfg)

	// 自由讨论中的用户发言立即冻结全场
	if _, err := sched.Submit(models.MessageDraft{
		From: models.ParticipantUser, Type: models.TypeUserInput,
		Content: "等等，我想把风险降低一点",
	}); err != nil {
		t.Fatalf("用户发言失败: %v", err)
	}
	if st := sched.State(); st != StatePaused {
		t.Fatalf("用户发言后期望 paused，实际 %s", st)
	}
	if by := sched.InterruptedBy(); by != models.ParticipantUser {
		t.Errorf("打断者应为 user，实际 %s", by)
	}
	for _, id := range registry.Agents() {
		if st, _ := registry.State(id); st != models.StatePaused {
			t.Errorf("暂停后 %s 期望 paused，实际 %s", id, st)
		}
	}

	// 暂停期间专家发言快速失败
	if _, err := sched.Submit(models.MessageDraft{
		From: models.ParticipantRisk, Type: models.TypeRiskAssessment, Content: "重新评估",
	}); !errors.Is(err, ErrRejected) {
		t.Errorf("暂停期间专家发言期望 ErrRejected，实际 %v", err)
	}

	// 暂停期间用户可以继续发言，不会重复暂停
	if _, err := sched.Submit(models.MessageDraft{
		From: models.ParticipantUser, Type: models.TypeUserInput, Content: "比如仓位砍半",
	}); err != nil {
		t.Errorf("暂停期间用户发言失败: %v", err)
	}

	if err := sched.Resume(); err != nil {
		t.Fatalf("恢复失败: %v", err)
	}
	if st := sched.State(); st != StateOpenDiscussion {
		t.Errorf("恢复后期望 open_discussion，实际 %s", st)
	}
	if _, err := sched.Submit(models.MessageDraft{
		From: models.ParticipantRisk, Type: models.TypeRiskAssessment, Content: "仓位砍半后风险可控",
	}); err != nil {
		t.Errorf("恢复后专家发言失败: %v", err)
	}

	if err := sched.Resume(); !errors.Is(err, ErrNotPaused) {
		t.Errorf("未暂停时恢复期望 ErrNotPaused，实际 %v", err)
	}
}

// TestSchedulerInterruptDuringIntroduction 测试介绍阶段的显式打断
func TestSchedulerInterruptDuringIntroduction(t *testing.T) {
	sched, _, _, _, _ := newTestScheduler(DefaultConfig())

	msg, err := sched.Submit(models.MessageDraft{
		From: models.ParticipantMarket, To: models.ParticipantUser,
		Type:    models.TypeIntroduction,
		Content: "激进还是保守？",
		Ask:     &models.AskDraft{},
	})
	if err != nil {
		t.Fatalf("介绍失败: %v", err)
	}

	sched.Interrupt(models.ParticipantUser)
	sched.Interrupt(models.ParticipantUser) // 重复打断是空操作
	if st := sched.State(); st != StatePaused {
		t.Fatalf("打断后期望 paused，实际 %s", st)
	}

	// 暂停期间用户仍可回答未决问题
	if _, err := sched.Submit(models.MessageDraft{
		From: models.ParticipantUser, Type: models.TypeAnswer,
		QuestionID: msg.Question.QuestionID, Content: "保守",
	}); err != nil {
		t.Fatalf("暂停期间回答失败: %v", err)
	}

	if err := sched.Resume(); err != nil {
		t.Fatalf("恢复失败: %v", err)
	}
	if st := sched.State(); st != StateIntroduction {
		t.Errorf("恢复后期望回到 introduction，实际 %s", st)
	}
	if next := sched.NextIntroducer(); next != models.ParticipantStrategy {
		t.Errorf("恢复后下一位应为 strategy，实际 %s", next)
	}
}

// TestSchedulerAutoResume 测试暂停后的自动恢复
func TestSchedulerAutoResume(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoResume = time.Minute
	sched, _, _, _, clock := newTestScheduler(cfg)
	runIntroductions(t, sched, cfg)

	sched.Interrupt(models.ParticipantUser)

	clock.Advance(30 * time.Second)
	sched.Tick(clock.Now())
	if st := sched.State(); st != StatePaused {
		t.Errorf("延迟未到不应自动恢复，实际 %s", st)
	}

	clock.Advance(31 * time.Second)
	sched.Tick(clock.Now())
	if st := sched.State(); st != StateOpenDiscussion {
		t.Errorf("延迟到点后期望自动恢复为 open_discussion，实际 %s", st)
	}
}

// TestSchedulerQuestionExpiry 测试问题过期解除阻塞
func TestSchedulerQuestionExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QuestionTTL = time.Minute
	sched, store, registry, _, clock := newTestScheduler(cfg)

	if _, err := sched.Submit(models.MessageDraft{
		From: models.ParticipantMarket, To: models.ParticipantUser,
		Type: models.TypeIntroduction, Content: "激进还是保守？",
		Ask: &models.AskDraft{Options: []string{"aggressive", "conservative"}},
	}); err != nil {
		t.Fatalf("介绍失败: %v", err)
	}
	before := store.Len()

	clock.Advance(2 * time.Minute)
	sched.Tick(clock.Now())

	if st := sched.State(); st != StateIntroduction {
		t.Errorf("问题过期后期望回到 introduction，实际 %s", st)
	}
	if next := sched.NextIntroducer(); next != models.ParticipantStrategy {
		t.Errorf("过期后下一位应为 strategy，实际 %s", next)
	}
	if st, _ := registry.State(models.ParticipantMarket); st != models.StateIdle {
		t.Errorf("提问者过期后应回到空闲，实际 %s", st)
	}

	// 过期会追加一条 system 通知
	notices := store.ReadSince(int64(before) - 1)
	if len(notices) != 1 || notices[0].From != models.ParticipantSystem || notices[0].Type != models.TypeSystem {
		t.Fatalf("期望恰好一条 system 过期通知，实际 %+v", notices)
	}
}
