package warroom

import (
	"fmt"
	"sync"
	"time"

	"github.com/run-bigpig/warroom/internal/logger"
	"github.com/run-bigpig/warroom/internal/models"
)

var storeLog = logger.New("Store")

// Store 仅追加的有序消息库。
// ID 由入库时分配（从 0 起单调递增，永不复用），时间戳随 ID 单调不减。
// 入库后消息不可变更，也不会被重排或删除。
type Store struct {
	mu       sync.RWMutex
	messages []models.Message
	nextID   int64
	clock    func() time.Time
	wal      *TranscriptLog // 可选的落盘记录
	notify   func()         // 入库后通知回调（非阻塞）
}

// NewStore 创建空消息库
func NewStore() *Store {
	return &Store{clock: time.Now}
}

// SetClock 覆盖时钟，仅用于测试
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// SetNotify 设置入库通知回调，回调必须是非阻塞的
func (s *Store) SetNotify(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
}

// AttachTranscript 挂载落盘记录，并从已有记录恢复消息与下一个 ID
func (s *Store) AttachTranscript(wal *TranscriptLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) > 0 {
		return fmt.Errorf("消息库非空，无法挂载落盘记录")
	}

	restored, err := wal.Load()
	if err != nil {
		return fmt.Errorf("恢复战况记录失败: %w", err)
	}

	for _, msg := range restored {
		if msg.ID >= s.nextID {
			s.nextID = msg.ID + 1
		}
		s.messages = append(s.messages, msg)
	}
	s.wal = wal

	if len(restored) > 0 {
		storeLog.Info("restored %d messages, next id %d", len(restored), s.nextID)
	}
	return nil
}

// Append 校验草稿并入库，分配 ID 与时间戳后返回入库消息。
// 仅在草稿缺失 from/type 时失败，其余情况必定成功。
func (s *Store) Append(draft models.MessageDraft) (models.Message, error) {
	return s.append(draft, nil)
}

// append 入库实现，question 非空时随消息一同入库（调度器提问路径使用）
func (s *Store) append(draft models.MessageDraft, question *models.Question) (models.Message, error) {
	if draft.From == "" || draft.Type == "" {
		return models.Message{}, fmt.Errorf("%w: 缺少 from 或 type", ErrInvalidMessage)
	}

	s.mu.Lock()

	to := draft.To
	if to == "" {
		to = models.ParticipantAll
	}

	ts := s.clock().UnixMilli()
	if n := len(s.messages); n > 0 && ts < s.messages[n-1].Timestamp {
		// 时间戳必须随 ID 单调不减，时钟回拨时夹紧
		ts = s.messages[n-1].Timestamp
	}

	msg := models.Message{
		ID:         s.nextID,
		From:       draft.From,
		To:         to,
		Type:       draft.Type,
		Content:    draft.Content,
		Timestamp:  ts,
		Importance: draft.Importance,
		QuestionID: draft.QuestionID,
	}
	if question != nil {
		snapshot := *question
		msg.Question = &snapshot
	}

	// ID 重复意味着消息库自身实现损坏，按致命错误处理
	if n := len(s.messages); n > 0 && msg.ID <= s.messages[n-1].ID {
		s.mu.Unlock()
		panic(fmt.Sprintf("warroom: 消息 ID 倒序 %d <= %d", msg.ID, s.messages[n-1].ID))
	}

	s.nextID++
	s.messages = append(s.messages, msg)

	wal := s.wal
	notify := s.notify
	s.mu.Unlock()

	if wal != nil {
		if err := wal.Append(msg); err != nil {
			// 落盘失败不影响内存事实，仅记录
			storeLog.Error("transcript append error: %v", err)
		}
	}
	if notify != nil {
		notify()
	}
	return msg, nil
}

// ReadSince 返回所有 ID 大于 lastID 的消息，按 ID 升序。
// 与 Append 并发调用安全；相同的 lastID 重复轮询不会丢失也不会重复。
func (s *Store) ReadSince(lastID int64) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// 二分定位第一条 ID > lastID 的消息
	lo, hi := 0, len(s.messages)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.messages[mid].ID <= lastID {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	result := make([]models.Message, len(s.messages)-lo)
	copy(result, s.messages[lo:])
	return result
}

// All 返回完整战况记录副本，用于断线重连后的重建
func (s *Store) All() []models.Message {
	return s.ReadSince(-1)
}

// LastID 返回当前最大消息 ID，空库返回 -1
func (s *Store) LastID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID - 1
}

// Len 返回消息数量
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
