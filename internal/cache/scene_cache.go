package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/spawnsvc/internal/logging"
	"github.com/annel0/spawnsvc/internal/scene"
	"github.com/annel0/spawnsvc/internal/storage"
	"golang.org/x/sync/singleflight"
)

type sceneEntry struct {
	scene   *scene.Scene
	expires time.Time
}

// SceneCache - read-through кеш поверх SceneRepo. Запись и удаление идут
// в хранилище, затем сбрасывают локальную копию и оповещают другие узлы.
// TTL ограничивает устаревание, если уведомление потерялось.
type SceneCache struct {
	repo storage.SceneRepo
	inv  Invalidator
	ttl  time.Duration
	now  func() time.Time
	log  *logging.Logger

	mu      sync.RWMutex
	entries map[string]sceneEntry
	loads   singleflight.Group

	hits          int64
	misses        int64
	invalidations int64
}

var _ storage.SceneRepo = (*SceneCache)(nil)

// NewSceneCache оборачивает repo. inv может быть nil (без рассылки).
func NewSceneCache(ctx context.Context, repo storage.SceneRepo, inv Invalidator, ttl time.Duration) (*SceneCache, error) {
	if ttl <= 0 {
		ttl = DefaultConfig().TTL
	}
	c := &SceneCache{
		repo:    repo,
		inv:     inv,
		ttl:     ttl,
		now:     time.Now,
		log:     logging.GetStorageLogger(),
		entries: make(map[string]sceneEntry),
	}
	if inv != nil {
		if err := inv.SubscribeInvalidations(ctx, c.handleInvalidation); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Load возвращает копию сцены из кеша или из хранилища.
// Отсутствующие сцены не кешируются.
func (c *SceneCache) Load(ctx context.Context, id string) (*scene.Scene, error) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()

	if ok && c.now().Before(e.expires) {
		atomic.AddInt64(&c.hits, 1)
		return e.scene.Clone(), nil
	}

	atomic.AddInt64(&c.misses, 1)
	// Одновременные промахи по одной сцене читают хранилище один раз
	v, err, _ := c.loads.Do(id, func() (any, error) {
		sc, err := c.repo.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[id] = sceneEntry{scene: sc, expires: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return sc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*scene.Scene).Clone(), nil
}

func (c *SceneCache) Save(ctx context.Context, sc *scene.Scene) (int64, error) {
	version, err := c.repo.Save(ctx, sc)
	if err != nil {
		return 0, err
	}
	c.invalidate(ctx, sc.ID)
	return version, nil
}

func (c *SceneCache) Delete(ctx context.Context, id string) error {
	if err := c.repo.Delete(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *SceneCache) List(ctx context.Context) ([]string, error) {
	return c.repo.List(ctx)
}

// Close закрывает рассылку и хранилище
func (c *SceneCache) Close() error {
	if c.inv != nil {
		if err := c.inv.Close(); err != nil {
			c.log.Warn("Ошибка закрытия инвалидатора: %v", err)
		}
	}
	return c.repo.Close()
}

// Metrics возвращает снимок счётчиков
func (c *SceneCache) Metrics() Metrics {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()

	m := Metrics{
		Hits:          atomic.LoadInt64(&c.hits),
		Misses:        atomic.LoadInt64(&c.misses),
		Invalidations: atomic.LoadInt64(&c.invalidations),
		Entries:       entries,
	}
	if total := m.Hits + m.Misses; total > 0 {
		m.HitRatio = float64(m.Hits) / float64(total)
	}
	return m
}

func (c *SceneCache) invalidate(ctx context.Context, id string) {
	c.drop(id)
	if c.inv == nil {
		return
	}
	if err := c.inv.PublishInvalidation(ctx, id); err != nil {
		c.log.Warn("Не удалось разослать инвалидацию сцены %s: %v", id, err)
	}
}

func (c *SceneCache) handleInvalidation(id string) error {
	c.drop(id)
	c.log.Debug("Сцена %s сброшена из кеша по уведомлению", id)
	return nil
}

func (c *SceneCache) drop(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
	atomic.AddInt64(&c.invalidations, 1)
}
