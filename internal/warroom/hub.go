package warroom

import (
	"context"
	"sync"

	"github.com/run-bigpig/warroom/internal/models"
)

// Hub 观察者推送枢纽。采用"通知 + 拉取"：写入方只向每个订阅者的
// 容量为 1 的信号通道做非阻塞投递，消息本体始终从消息库按游标拉取，
// 因此慢观察者或断线观察者永远不会阻塞 Append，且天然恰好一次、有序。
type Hub struct {
	store  *Store
	mu     sync.Mutex
	subs   map[int64]*Subscription
	nextID int64
}

func newHub(store *Store) *Hub {
	return &Hub{
		store: store,
		subs:  make(map[int64]*Subscription),
	}
}

// wake 通知所有订阅者有新消息，永不阻塞
func (h *Hub) wake() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		select {
		case sub.signal <- struct{}{}:
		default: // 订阅者尚未消费上一次信号，无需重复投递
		}
	}
}

// Subscribe 从 lastID 之后开始订阅。断线重连等价于携带游标重新订阅：
// 先补读 lastID 之后的存量消息，再持续接收新消息，不多不少。
func (h *Hub) Subscribe(lastID int64) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		id:     h.nextID,
		hub:    h,
		cursor: lastID,
		signal: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	h.subs[sub.id] = sub
	return sub
}

// unsubscribe 移除订阅者
func (h *Hub) unsubscribe(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// Subscription 带游标的订阅
type Subscription struct {
	id        int64
	hub       *Hub
	cursor    int64
	signal    chan struct{}
	closeOnce sync.Once
	closed    chan struct{}
}

// Next 阻塞等待并返回下一批消息（至少一条），按 ID 升序。
// 订阅关闭后返回 ErrSessionClosed，ctx 取消时返回 ctx 的错误。
func (sub *Subscription) Next(ctx context.Context) ([]models.Message, error) {
	for {
		batch := sub.hub.store.ReadSince(sub.cursor)
		if len(batch) > 0 {
			sub.cursor = batch[len(batch)-1].ID
			return batch, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-sub.closed:
			return nil, ErrSessionClosed
		case <-sub.signal:
		}
	}
}

// Cursor 返回当前游标（最后一条已交付消息的 ID）
func (sub *Subscription) Cursor() int64 {
	return sub.cursor
}

// Close 关闭订阅，幂等
func (sub *Subscription) Close() {
	sub.closeOnce.Do(func() {
		close(sub.closed)
		sub.hub.unsubscribe(sub.id)
	})
}
