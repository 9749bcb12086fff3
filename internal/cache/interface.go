// Package cache держит локальные копии сцен перед медленным хранилищем
// (Redis, MariaDB, MongoDB) и рассылает инвалидацию между узлами сервиса.
package cache

import (
	"context"
	"sync"
	"time"
)

// Invalidator рассылает и принимает уведомления об изменении ключей.
// Собственные уведомления узла обработчику не доставляются.
type Invalidator interface {
	// PublishInvalidation отправляет уведомление об инвалидации.
	PublishInvalidation(ctx context.Context, key string) error

	// SubscribeInvalidations подписывается на уведомления других узлов.
	SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error

	// Close закрывает соединение.
	Close() error
}

// InvalidationHandler обрабатывает уведомление об инвалидации ключа
type InvalidationHandler func(key string) error

// Config настраивает кеш сцен
type Config struct {
	Enabled bool          `yaml:"enabled" env:"SPAWN_CACHE_ENABLED"`
	TTL     time.Duration `yaml:"ttl" env:"SPAWN_CACHE_TTL"`
	// Invalidation: "local" (один процесс) или "nats"
	Invalidation string `yaml:"invalidation" env:"SPAWN_CACHE_INVALIDATION"`
	NATSURL      string `yaml:"nats_url" env:"SPAWN_CACHE_NATS_URL"`
	Subject      string `yaml:"subject"`
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		TTL:          30 * time.Second,
		Invalidation: "local",
		Subject:      "spawn.cache.invalidation",
	}
}

// Metrics - счётчики кеша
type Metrics struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Invalidations int64   `json:"invalidations"`
	Entries       int     `json:"entries"`
	HitRatio      float64 `json:"hit_ratio"`
}

// LocalInvalidator раздаёт уведомления внутри процесса. Каждый
// подписчик - отдельный узел: уведомление не возвращается отправителю.
type LocalInvalidator struct {
	mu       sync.RWMutex
	handlers map[*localNode]InvalidationHandler
}

type localNode struct {
	hub *LocalInvalidator
}

// NewLocalInvalidator создаёт хаб локальной инвалидации
func NewLocalInvalidator() *LocalInvalidator {
	return &LocalInvalidator{handlers: make(map[*localNode]InvalidationHandler)}
}

// Node возвращает Invalidator для отдельного узла хаба
func (l *LocalInvalidator) Node() Invalidator {
	return &localNode{hub: l}
}

func (n *localNode) PublishInvalidation(_ context.Context, key string) error {
	n.hub.mu.RLock()
	defer n.hub.mu.RUnlock()
	for node, h := range n.hub.handlers {
		if node == n {
			continue
		}
		_ = h(key)
	}
	return nil
}

func (n *localNode) SubscribeInvalidations(_ context.Context, handler InvalidationHandler) error {
	n.hub.mu.Lock()
	n.hub.handlers[n] = handler
	n.hub.mu.Unlock()
	return nil
}

func (n *localNode) Close() error {
	n.hub.mu.Lock()
	delete(n.hub.handlers, n)
	n.hub.mu.Unlock()
	return nil
}
