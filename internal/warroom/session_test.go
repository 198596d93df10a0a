package warroom

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/run-bigpig/warroom/internal/models"
)

// TestSessionLifecycle 端到端：介绍、提问、打断、恢复、订阅推送
func TestSessionLifecycle(t *testing.T) {
	clock := newFakeClock()
	cfg := DefaultConfig()
	sess, err := NewSessionWithClock(cfg, clock.Now)
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}
	sess.Start()
	defer sess.Stop()

	sub := sess.Subscribe(-1)
	defer sub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// market 的介绍带问题，阻塞后续介绍
	msg, err := sess.Submit(models.MessageDraft{
		From: models.ParticipantMarket, To: models.ParticipantUser,
		Type: models.TypeIntroduction, Content: "激进还是保守？",
		Ask: &models.AskDraft{Options: []string{"aggressive", "conservative"}},
	})
	if err != nil {
		t.Fatalf("介绍失败: %v", err)
	}
	if st := sess.State(); st != StateAwaitingAnswer {
		t.Fatalf("期望 awaiting_answer，实际 %s", st)
	}
	if q, ok := sess.PendingQuestion(models.ParticipantMarket); !ok || q.QuestionID != msg.Question.QuestionID {
		t.Fatalf("PendingQuestion 应返回 market 的未决问题")
	}

	// Answer 便捷入口以 user 身份回答
	if _, err := sess.Answer(msg.Question.QuestionID, "conservative"); err != nil {
		t.Fatalf("回答失败: %v", err)
	}

	// 其余席位依次介绍
	for _, id := range cfg.IntroOrder[1:] {
		if _, err := sess.Submit(models.MessageDraft{
			From: id, Type: models.TypeIntroduction, Content: "大家好",
		}); err != nil {
			t.Fatalf("%s 介绍失败: %v", id, err)
		}
	}
	if st := sess.State(); st != StateOpenDiscussion {
		t.Fatalf("全员介绍后期望 open_discussion，实际 %s", st)
	}

	// 用户打断与恢复
	if _, err := sess.Submit(models.MessageDraft{
		From: models.ParticipantUser, Type: models.TypeUserInput, Content: "等一下",
	}); err != nil {
		t.Fatalf("用户发言失败: %v", err)
	}
	if st, _ := sess.ParticipantState(models.ParticipantRisk); st != models.StatePaused {
		t.Errorf("打断后 risk 期望 paused，实际 %s", st)
	}
	if err := sess.Resume(); err != nil {
		t.Fatalf("恢复失败: %v", err)
	}

	// 订阅者最终恰好一次收到全部消息
	want := sess.Transcript()
	var got []models.Message
	for len(got) < len(want) {
		batch, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("订阅拉取失败: %v", err)
		}
		got = append(got, batch...)
	}
	if len(got) != len(want) {
		t.Fatalf("订阅收到 %d 条，期望 %d 条", len(got), len(want))
	}
	for i := range got {
		if got[i].ID != want[i].ID {
			t.Errorf("第 %d 条 ID 不一致: %d != %d", i, got[i].ID, want[i].ID)
		}
	}
}

// TestSessionTranscriptPersistence 测试落盘与重建
func TestSessionTranscriptPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.jsonl")
	cfg := DefaultConfig()
	cfg.TranscriptPath = path

	sess, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}
	for _, id := range cfg.IntroOrder {
		if _, err := sess.Submit(models.MessageDraft{
			From: id, Type: models.TypeIntroduction, Content: "大家好",
		}); err != nil {
			t.Fatalf("%s 介绍失败: %v", id, err)
		}
	}
	lastID := sess.Transcript()[len(sess.Transcript())-1].ID
	sess.Stop()

	restored, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("重建会话失败: %v", err)
	}
	defer restored.Stop()

	history := restored.Transcript()
	if len(history) != len(cfg.IntroOrder) {
		t.Fatalf("重建后期望 %d 条历史，实际 %d", len(cfg.IntroOrder), len(history))
	}
	// 重建后 ID 继续单调分配
	msg, err := restored.Submit(models.MessageDraft{
		From: models.ParticipantSystem, Type: models.TypeSystem, Content: "会话已重建",
	})
	if err != nil {
		t.Fatalf("重建后入库失败: %v", err)
	}
	if msg.ID != lastID+1 {
		t.Errorf("重建后 ID 期望 %d，实际 %d", lastID+1, msg.ID)
	}
}

// TestManager 测试多会话管理
func TestManager(t *testing.T) {
	m := NewManager()
	defer m.CloseAll()

	sess, err := m.Create(DefaultConfig())
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	if got, err := m.MustGet(sess.ID); err != nil || got != sess {
		t.Errorf("MustGet 应返回同一会话: %v", err)
	}
	if len(m.IDs()) != 1 {
		t.Errorf("期望 1 个会话，实际 %d", len(m.IDs()))
	}

	m.Close(sess.ID)
	if _, err := m.MustGet(sess.ID); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("关闭后期望 ErrSessionClosed，实际 %v", err)
	}
}
