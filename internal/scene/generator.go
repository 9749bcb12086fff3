package scene

import (
	"fmt"
	"math/rand"

	"github.com/annel0/spawnsvc/internal/physics"
	"github.com/annel0/spawnsvc/internal/spawn"
	"github.com/annel0/spawnsvc/internal/util"
	"github.com/annel0/spawnsvc/internal/vec"
)

// Пороги шума для генерации
const (
	ObstacleThreshold = 0.62 // Выше - ячейка занята препятствием
	GroundAmplitude   = 4.0  // Перепад высоты земли
)

// Generator процедурно строит сцену: препятствия там, где шум высокий,
// точки появления - в случайных ячейках с указанными тегами.
type Generator struct {
	Seed       int64
	Width      int     // Ширина области в ячейках
	Depth      int     // Глубина области в ячейках
	CellSize   float64 // Размер ячейки в мировых единицах
	NoiseScale float64 // Масштаб шума
	Points     int     // Сколько точек появления создать
	Tags       []string
	// WithPreview помечает последнюю точку как preview
	WithPreview bool
}

// NewGenerator создаёт генератор с настройками по умолчанию
func NewGenerator(seed int64) *Generator {
	return &Generator{
		Seed:       seed,
		Width:      32,
		Depth:      32,
		CellSize:   2.0,
		NoiseScale: 0.15,
		Points:     8,
	}
}

// Generate строит сцену с указанным ID. Результат детерминирован для Seed.
func (g *Generator) Generate(id string) (*Scene, error) {
	if g.Width <= 0 || g.Depth <= 0 || g.CellSize <= 0 {
		return nil, fmt.Errorf("%w: generator area must be positive", ErrInvalidScene)
	}

	noise := util.NewNoise2D(g.Seed)
	rng := rand.New(rand.NewSource(g.Seed))

	s := &Scene{ID: id, Name: fmt.Sprintf("generated-%d", g.Seed)}

	half := vec.Vec3Float{X: g.CellSize / 2, Y: g.CellSize / 2, Z: g.CellSize}
	for x := 0; x < g.Width; x++ {
		for y := 0; y < g.Depth; y++ {
			if noise.At(float64(x)*g.NoiseScale, float64(y)*g.NoiseScale) < ObstacleThreshold {
				continue
			}
			s.Blockers = append(s.Blockers, physics.NewBox(g.cellCenter(noise, x, y, half.Z), half))
		}
	}

	for i := 0; i < g.Points; i++ {
		x, y := rng.Intn(g.Width), rng.Intn(g.Depth)
		p := spawn.Point{
			ID:       fmt.Sprintf("%s-start-%d", id, i),
			Position: g.cellCenter(noise, x, y, 1),
			Rotation: vec.Rotator{Yaw: float64(rng.Intn(8)) * 45},
		}
		if len(g.Tags) > 0 {
			p.Tag = g.Tags[i%len(g.Tags)]
		}
		s.SpawnPoints = append(s.SpawnPoints, p)
	}

	if g.WithPreview && len(s.SpawnPoints) > 0 {
		s.SpawnPoints[len(s.SpawnPoints)-1].Preview = true
	}

	return s, s.Validate()
}

// cellCenter возвращает центр ячейки, поднятый над землёй на lift
func (g *Generator) cellCenter(noise *util.Noise2D, x, y int, lift float64) vec.Vec3Float {
	ground := noise.At(float64(x)*g.NoiseScale*0.5, float64(y)*g.NoiseScale*0.5) * GroundAmplitude
	return vec.Vec3Float{
		X: (float64(x) + 0.5) * g.CellSize,
		Y: (float64(y) + 0.5) * g.CellSize,
		Z: ground + lift,
	}
}
