package warroom

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/run-bigpig/warroom/internal/models"
)

// fakeClock 可手动拨动的测试时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 9, 30, 0, 0, time.Local)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestStoreAppend 测试消息入库与 ID 分配
func TestStoreAppend(t *testing.T) {
	t.Run("ID从0开始单调递增", func(t *testing.T) {
		s := NewStore()
		for i := 0; i < 5; i++ {
			msg, err := s.Append(models.MessageDraft{
				From:    models.ParticipantMarket,
				Type:    models.TypeAnalysis,
				Content: fmt.Sprintf("消息%d", i),
			})
			if err != nil {
				t.Fatalf("入库失败: %v", err)
			}
			if msg.ID != int64(i) {
				t.Errorf("期望 ID %d，实际 %d", i, msg.ID)
			}
		}
	})

	t.Run("缺失from或type被拒绝", func(t *testing.T) {
		s := NewStore()
		if _, err := s.Append(models.MessageDraft{Type: models.TypeAnalysis}); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("缺失 from 期望 ErrInvalidMessage，实际 %v", err)
		}
		if _, err := s.Append(models.MessageDraft{From: models.ParticipantMarket}); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("缺失 type 期望 ErrInvalidMessage，实际 %v", err)
		}
		if s.Len() != 0 {
			t.Errorf("被拒绝的草稿不应入库，库内有 %d 条", s.Len())
		}
	})

	t.Run("to为空时默认广播", func(t *testing.T) {
		s := NewStore()
		msg, err := s.Append(models.MessageDraft{From: models.ParticipantRisk, Type: models.TypeRiskAssessment})
		if err != nil {
			t.Fatalf("入库失败: %v", err)
		}
		if msg.To != models.ParticipantAll {
			t.Errorf("期望 to=all，实际 %s", msg.To)
		}
	})

	t.Run("时间戳随ID单调不减", func(t *testing.T) {
		clock := newFakeClock()
		s := NewStore()
		s.SetClock(clock.Now)

		first, _ := s.Append(models.MessageDraft{From: models.ParticipantMarket, Type: models.TypeAnalysis})
		clock.Advance(-10 * time.Second) // 模拟时钟回拨
		second, _ := s.Append(models.MessageDraft{From: models.ParticipantRisk, Type: models.TypeAnalysis})

		if second.Timestamp < first.Timestamp {
			t.Errorf("时间戳倒退: %d -> %d", first.Timestamp, second.Timestamp)
		}
	})
}

// TestStoreReadSince 测试恰好一次的轮询语义
func TestStoreReadSince(t *testing.T) {
	s := NewStore()
	for i := 0; i < 3; i++ {
		s.Append(models.MessageDraft{From: models.ParticipantMarket, Type: models.TypeAnalysis, Content: fmt.Sprintf("m%d", i)})
	}

	t.Run("无新消息时重复轮询结果一致", func(t *testing.T) {
		a := s.ReadSince(2)
		b := s.ReadSince(2)
		if len(a) != 0 || len(b) != 0 {
			t.Errorf("期望两次均为空，实际 %d / %d", len(a), len(b))
		}
	})

	t.Run("新入库一条后恰好读到一条", func(t *testing.T) {
		s.Append(models.MessageDraft{From: models.ParticipantRisk, Type: models.TypeRiskAssessment})
		got := s.ReadSince(2)
		if len(got) != 1 {
			t.Fatalf("期望恰好 1 条新消息，实际 %d", len(got))
		}
		if got[0].ID != 3 {
			t.Errorf("期望 ID 3，实际 %d", got[0].ID)
		}
	})

	t.Run("全量读取按ID升序无空洞", func(t *testing.T) {
		all := s.ReadSince(-1)
		if len(all) != 4 {
			t.Fatalf("期望 4 条，实际 %d", len(all))
		}
		for i, msg := range all {
			if msg.ID != int64(i) {
				t.Errorf("位置 %d 期望 ID %d，实际 %d", i, i, msg.ID)
			}
		}
	})
}

// TestStoreConcurrent 测试并发追加下的有序性：无空洞、无重复
func TestStoreConcurrent(t *testing.T) {
	s := NewStore()

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := s.Append(models.MessageDraft{
					From:    models.ParticipantMarket,
					Type:    models.TypeAnalysis,
					Content: fmt.Sprintf("w%d-%d", w, i),
				})
				if err != nil {
					t.Errorf("并发入库失败: %v", err)
				}
			}
		}(w)
	}

	// 并发读取不应观察到半写状态
	done := make(chan struct{})
	go func() {
		defer close(done)
		var last int64 = -1
		for i := 0; i < 200; i++ {
			batch := s.ReadSince(last)
			for _, msg := range batch {
				if msg.ID <= last {
					t.Errorf("读到乱序或重复消息: %d <= %d", msg.ID, last)
				}
				last = msg.ID
			}
		}
	}()

	wg.Wait()
	<-done

	all := s.All()
	if len(all) != writers*perWriter {
		t.Fatalf("期望 %d 条，实际 %d", writers*perWriter, len(all))
	}
	for i, msg := range all {
		if msg.ID != int64(i) {
			t.Fatalf("位置 %d 出现空洞或重复: ID %d", i, msg.ID)
		}
	}
}

// TestTranscriptRecovery 测试落盘与重启恢复
func TestTranscriptRecovery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.jsonl")

	wal, err := OpenTranscript(path)
	if err != nil {
		t.Fatalf("打开落盘记录失败: %v", err)
	}

	s := NewStore()
	if err := s.AttachTranscript(wal); err != nil {
		t.Fatalf("挂载落盘记录失败: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := s.Append(models.MessageDraft{
			From:    models.ParticipantStrategy,
			Type:    models.TypeStrategy,
			Content: fmt.Sprintf("策略%d", i),
		}); err != nil {
			t.Fatalf("入库失败: %v", err)
		}
	}
	wal.Close()

	// 模拟重启：用同一路径重建
	wal2, err := OpenTranscript(path)
	if err != nil {
		t.Fatalf("重新打开失败: %v", err)
	}
	defer wal2.Close()

	restored := NewStore()
	if err := restored.AttachTranscript(wal2); err != nil {
		t.Fatalf("恢复失败: %v", err)
	}

	if restored.Len() != 3 {
		t.Fatalf("期望恢复 3 条，实际 %d", restored.Len())
	}
	if restored.LastID() != 2 {
		t.Errorf("期望最大 ID 2，实际 %d", restored.LastID())
	}

	// 下一个 ID 必须是已见最大 ID + 1
	msg, err := restored.Append(models.MessageDraft{From: models.ParticipantRisk, Type: models.TypeRiskAssessment})
	if err != nil {
		t.Fatalf("恢复后入库失败: %v", err)
	}
	if msg.ID != 3 {
		t.Errorf("恢复后期望 ID 3，实际 %d", msg.ID)
	}
}
