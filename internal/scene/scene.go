package scene

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/annel0/spawnsvc/internal/physics"
	"github.com/annel0/spawnsvc/internal/spawn"
)

// ErrInvalidScene возвращается Validate для некорректных описаний сцен
var ErrInvalidScene = errors.New("invalid scene")

// Scene описывает сцену: точки появления и статическую блокирующую геометрию.
// Порядок SpawnPoints задаёт порядок перебора при выборе.
type Scene struct {
	ID          string        `json:"id" yaml:"id" bson:"scene_id"`
	Name        string        `json:"name,omitempty" yaml:"name,omitempty" bson:"name,omitempty"`
	SpawnPoints []spawn.Point `json:"spawn_points" yaml:"spawn_points" bson:"spawn_points"`
	Blockers    []physics.Box `json:"blockers,omitempty" yaml:"blockers,omitempty" bson:"blockers,omitempty"`
	Version     int64         `json:"version" yaml:"version,omitempty" bson:"version"`
	UpdatedAt   time.Time     `json:"updated_at" yaml:"-" bson:"updated_at"`
}

// Points перечисляет точки появления в порядке описания
func (s *Scene) Points() iter.Seq[spawn.Point] {
	return spawn.SliceProvider(s.SpawnPoints).SpawnPoints()
}

// Provider возвращает перечислитель точек сцены
func (s *Scene) Provider() spawn.Provider {
	return spawn.SliceProvider(s.SpawnPoints)
}

// Geometry строит индекс блокирующей геометрии сцены
func (s *Scene) Geometry(opts ...physics.GeometryOption) *physics.Geometry {
	return physics.NewGeometry(s.Blockers, opts...)
}

// Tags возвращает уникальные теги точек в порядке первого появления
func (s *Scene) Tags() []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, p := range s.SpawnPoints {
		if p.Tag == "" {
			continue
		}
		if _, ok := seen[p.Tag]; ok {
			continue
		}
		seen[p.Tag] = struct{}{}
		tags = append(tags, p.Tag)
	}
	return tags
}

// Validate проверяет описание сцены
func (s *Scene) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidScene)
	}

	ids := make(map[string]struct{}, len(s.SpawnPoints))
	for i, p := range s.SpawnPoints {
		if p.ID == "" {
			return fmt.Errorf("%w: spawn point #%d has empty id", ErrInvalidScene, i)
		}
		if _, dup := ids[p.ID]; dup {
			return fmt.Errorf("%w: duplicate spawn point id %q", ErrInvalidScene, p.ID)
		}
		ids[p.ID] = struct{}{}
	}

	for i, b := range s.Blockers {
		if !b.Valid() {
			return fmt.Errorf("%w: blocker #%d has min > max", ErrInvalidScene, i)
		}
	}
	return nil
}

// Clone возвращает глубокую копию сцены
func (s *Scene) Clone() *Scene {
	c := *s
	c.SpawnPoints = append([]spawn.Point(nil), s.SpawnPoints...)
	c.Blockers = append([]physics.Box(nil), s.Blockers...)
	return &c
}
