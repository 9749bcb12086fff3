package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/annel0/spawnsvc/internal/scene"
)

// MemorySceneRepo реализует SceneRepo в памяти.
// Используется для CI/локальной разработки без внешних хранилищ.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemorySceneRepo struct {
	mu     sync.RWMutex
	scenes map[string]*scene.Scene
	// lastSave - отметка последнего сохранения, UpdatedAt строго растёт
	lastSave time.Time
}

// NewMemorySceneRepo создает репозиторий сцен в памяти
func NewMemorySceneRepo() *MemorySceneRepo {
	return &MemorySceneRepo{
		scenes: make(map[string]*scene.Scene),
	}
}

// Save сохраняет копию сцены
func (r *MemorySceneRepo) Save(ctx context.Context, s *scene.Scene) (int64, error) {
	if err := checkSaveable(s); err != nil {
		return 0, err
	}
	if err := ctxDone(ctx); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := s.Clone()
	stored.Version = 1
	if prev, ok := r.scenes[s.ID]; ok {
		stored.Version = prev.Version + 1
	}
	now := time.Now().UTC()
	if !now.After(r.lastSave) {
		now = r.lastSave.Add(time.Nanosecond)
	}
	r.lastSave = now
	stored.UpdatedAt = now
	r.scenes[s.ID] = stored
	return stored.Version, nil
}

// Load возвращает копию сцены
func (r *MemorySceneRepo) Load(ctx context.Context, id string) (*scene.Scene, error) {
	if err := ctxDone(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.scenes[id]
	if !ok {
		return nil, ErrSceneNotFound
	}
	return s.Clone(), nil
}

// Delete удаляет сцену
func (r *MemorySceneRepo) Delete(ctx context.Context, id string) error {
	if err := ctxDone(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.scenes[id]; !ok {
		return ErrSceneNotFound
	}
	delete(r.scenes, id)
	return nil
}

// List возвращает отсортированные ID сцен
func (r *MemorySceneRepo) List(ctx context.Context) ([]string, error) {
	if err := ctxDone(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.scenes))
	for id := range r.scenes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Count возвращает количество сцен (для отладки)
func (r *MemorySceneRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scenes)
}

// Close ничего не делает
func (r *MemorySceneRepo) Close() error {
	return nil
}
