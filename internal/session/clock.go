package session

import (
	"sync"
	"time"
)

// Clock отсчитывает время сцены в секундах с момента Start.
// Серверное время - локальное время сцены со смещением, полученным
// при синхронизации с авторитетным сервером.
type Clock struct {
	mu           sync.RWMutex
	now          func() time.Time
	start        time.Time
	serverOffset time.Duration
}

// NewClock создаёт часы; nil now - time.Now
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Start запускает отсчёт
func (c *Clock) Start() {
	c.mu.Lock()
	c.start = c.now()
	c.mu.Unlock()
}

// Started сообщает, запущены ли часы
func (c *Clock) Started() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.start.IsZero()
}

// SetServerOffset задаёт смещение серверного времени относительно локального
func (c *Clock) SetServerOffset(d time.Duration) {
	c.mu.Lock()
	c.serverOffset = d
	c.mu.Unlock()
}

// Time - секунды с начала сцены, 0 если часы не запущены
func (c *Clock) Time() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.start.IsZero() {
		return 0
	}
	return c.now().Sub(c.start).Seconds()
}

// TimeSince - секунды, прошедшие с момента t по часам сцены
func (c *Clock) TimeSince(t float64) float64 {
	return c.Time() - t
}

// ServerTime - серверное время сцены, 0 если часы не запущены
func (c *Clock) ServerTime() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.start.IsZero() {
		return 0
	}
	return (c.now().Sub(c.start) + c.serverOffset).Seconds()
}

// ServerTimeSince - секунды, прошедшие с момента t по серверным часам
func (c *Clock) ServerTimeSince(t float64) float64 {
	return c.ServerTime() - t
}
