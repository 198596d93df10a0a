package agent

import (
	"sync"

	"github.com/run-bigpig/warroom/internal/models"
)

// Container 席位容器，按参与者 ID 索引
type Container struct {
	seats map[models.ParticipantID]*SeatAgent
	mu    sync.RWMutex
}

// NewContainer 创建席位容器
func NewContainer() *Container {
	return &Container{
		seats: make(map[models.ParticipantID]*SeatAgent),
	}
}

// LoadSeats 加载席位配置到容器
func (c *Container) LoadSeats(configs []models.AgentConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range configs {
		c.seats[configs[i].Seat()] = NewSeatAgent(&configs[i])
	}
}

// GetSeat 获取指定席位
func (c *Container) GetSeat(id models.ParticipantID) *SeatAgent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seats[id]
}

// EnabledSeats 按名册顺序返回启用的席位
func (c *Container) EnabledSeats() []*SeatAgent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []*SeatAgent
	for _, id := range models.DefaultIntroOrder() {
		if seat, ok := c.seats[id]; ok && seat.Enabled {
			result = append(result, seat)
		}
	}
	return result
}

// AllSeats 返回全部席位
func (c *Container) AllSeats() []*SeatAgent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*SeatAgent, 0, len(c.seats))
	for _, seat := range c.seats {
		result = append(result, seat)
	}
	return result
}
