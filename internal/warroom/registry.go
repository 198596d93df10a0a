package warroom

import (
	"fmt"
	"sync"

	"github.com/run-bigpig/warroom/internal/models"
)

// Registry 参与者名册，会话创建时固定，状态仅由调度器变更
type Registry struct {
	mu     sync.RWMutex
	order  []models.ParticipantID
	states map[models.ParticipantID]models.ParticipantState
}

// NewRegistry 按固定名册创建，所有参与者初始为空闲
func NewRegistry(roster []models.ParticipantID) *Registry {
	r := &Registry{
		order:  make([]models.ParticipantID, len(roster)),
		states: make(map[models.ParticipantID]models.ParticipantState, len(roster)),
	}
	copy(r.order, roster)
	for _, id := range roster {
		r.states[id] = models.StateIdle
	}
	return r
}

// State 查询参与者状态
func (r *Registry) State(id models.ParticipantID) (models.ParticipantState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownParticipant, id)
	}
	return st, nil
}

// setState 变更参与者状态，仅限调度器调用
func (r *Registry) setState(id models.ParticipantID, st models.ParticipantState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParticipant, id)
	}
	r.states[id] = st
	return nil
}

// Has 判断参与者是否在名册内
func (r *Registry) Has(id models.ParticipantID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.states[id]
	return ok
}

// AllIDs 返回名册副本
func (r *Registry) AllIDs() []models.ParticipantID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]models.ParticipantID, len(r.order))
	copy(result, r.order)
	return result
}

// Agents 返回名册中的专家参与者（非 user/system）
func (r *Registry) Agents() []models.ParticipantID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []models.ParticipantID
	for _, id := range r.order {
		if models.IsAgent(id) {
			result = append(result, id)
		}
	}
	return result
}

// Snapshot 返回全部参与者状态的副本
func (r *Registry) Snapshot() map[models.ParticipantID]models.ParticipantState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[models.ParticipantID]models.ParticipantState, len(r.states))
	for id, st := range r.states {
		result[id] = st
	}
	return result
}
