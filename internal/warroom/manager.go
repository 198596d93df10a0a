package warroom

import (
	"fmt"
	"sync"
)

// Manager 多会话管理器，按会话 ID 索引相互独立的 Session
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager 创建会话管理器
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create 创建并登记一个新会话
func (m *Manager) Create(cfg Config) (*Session, error) {
	s, err := NewSession(cfg)
	if err != nil {
		return nil, err
	}
	s.Start()

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

// Get 查找会话
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// MustGet 查找会话，不存在时返回错误
func (m *Manager) MustGet(id string) (*Session, error) {
	if s, ok := m.Get(id); ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionClosed, id)
}

// Close 结束并移除会话，不存在时为空操作
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if ok {
		s.Stop()
	}
}

// CloseAll 结束全部会话
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}

// IDs 返回全部会话 ID
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}
