package physics

import (
	"math"
	"sync"

	"github.com/annel0/spawnsvc/internal/vec"
)

const (
	// DefaultCellSize - размер ячейки сетки индекса по умолчанию
	DefaultCellSize = 16.0
	// DefaultTeleportRadius - радиус поиска свободной позиции
	DefaultTeleportRadius = 4.0
	// DefaultTeleportStep - шаг поиска свободной позиции
	DefaultTeleportStep = 0.5

	// maxBlockerCells - предел ячеек сетки на одно препятствие. Более крупные
	// препятствия не индексируются и проверяются перебором.
	maxBlockerCells = 1 << 16
)

// Geometry хранит статические блокирующие боксы сцены и отвечает на запросы
// пересечения. Боксы индексируются равномерной 2D сеткой по X/Y.
type Geometry struct {
	cellSize float64
	blockers []Box
	cells    map[vec.Vec2][]int
	// large - индексы препятствий вне сетки
	large []int
	// bounds - диапазон ячеек, занятых сеткой
	bounds  cellRange
	indexed bool

	// Параметры поиска свободной позиции
	teleportRadius float64
	teleportStep   float64

	probeOnce sync.Once
	probes    []vec.Vec3Float
}

// GeometryOption настраивает Geometry
type GeometryOption func(*Geometry)

// WithCellSize задаёт размер ячейки сетки
func WithCellSize(size float64) GeometryOption {
	return func(g *Geometry) {
		if size > 0 {
			g.cellSize = size
		}
	}
}

// WithTeleportSearch задаёт радиус и шаг поиска свободной позиции
func WithTeleportSearch(radius, step float64) GeometryOption {
	return func(g *Geometry) {
		if radius >= 0 {
			g.teleportRadius = radius
		}
		if step > 0 {
			g.teleportStep = step
		}
	}
}

// NewGeometry строит индекс по списку препятствий. Невалидные боксы пропускаются.
func NewGeometry(blockers []Box, opts ...GeometryOption) *Geometry {
	g := &Geometry{
		cellSize:       DefaultCellSize,
		cells:          make(map[vec.Vec2][]int),
		teleportRadius: DefaultTeleportRadius,
		teleportStep:   DefaultTeleportStep,
	}
	for _, opt := range opts {
		opt(g)
	}

	for _, b := range blockers {
		r, ok := g.cellRangeOf(b)
		if !ok {
			continue
		}
		idx := len(g.blockers)
		g.blockers = append(g.blockers, b)
		if !r.indexable() || r.area() > maxBlockerCells {
			g.large = append(g.large, idx)
			continue
		}

		minCell := vec.CellOf(b.Min.X, b.Min.Y, g.cellSize)
		maxCell := vec.CellOf(b.Max.X, b.Max.Y, g.cellSize)
		for x := minCell.X; x <= maxCell.X; x++ {
			for y := minCell.Y; y <= maxCell.Y; y++ {
				key := vec.Vec2{X: x, Y: y}
				g.cells[key] = append(g.cells[key], idx)
			}
		}
		if g.indexed {
			g.bounds = g.bounds.union(r)
		} else {
			g.bounds, g.indexed = r, true
		}
	}
	return g
}

// BlockerCount возвращает число проиндексированных препятствий
func (g *Geometry) BlockerCount() int {
	return len(g.blockers)
}

// cellRange - прямоугольник ячеек сетки в координатах ячеек. Хранится во
// float64, чтобы огромные боксы не переполняли int.
type cellRange struct {
	minX, minY, maxX, maxY float64
}

// cellRangeOf возвращает ячейки, которые покрывает бокс; false для невалидного бокса
func (g *Geometry) cellRangeOf(b Box) (cellRange, bool) {
	if !b.Valid() {
		return cellRange{}, false
	}
	return cellRange{
		minX: math.Floor(b.Min.X / g.cellSize),
		minY: math.Floor(b.Min.Y / g.cellSize),
		maxX: math.Floor(b.Max.X / g.cellSize),
		maxY: math.Floor(b.Max.Y / g.cellSize),
	}, true
}

// indexable сообщает, что координаты ячеек точно представимы в int
func (r cellRange) indexable() bool {
	for _, v := range []float64{r.minX, r.minY, r.maxX, r.maxY} {
		if math.IsInf(v, 0) || math.Abs(v) > 1<<52 {
			return false
		}
	}
	return true
}

func (r cellRange) empty() bool {
	return r.minX > r.maxX || r.minY > r.maxY
}

func (r cellRange) area() float64 {
	return (r.maxX - r.minX + 1) * (r.maxY - r.minY + 1)
}

func (r cellRange) union(o cellRange) cellRange {
	return cellRange{
		minX: math.Min(r.minX, o.minX),
		minY: math.Min(r.minY, o.minY),
		maxX: math.Max(r.maxX, o.maxX),
		maxY: math.Max(r.maxY, o.maxY),
	}
}

func (r cellRange) intersect(o cellRange) cellRange {
	return cellRange{
		minX: math.Max(r.minX, o.minX),
		minY: math.Max(r.minY, o.minY),
		maxX: math.Min(r.maxX, o.maxX),
		maxY: math.Min(r.maxY, o.maxY),
	}
}

// Encroaching сообщает, пересекает ли footprint в позиции pos/rot блокирующую
// геометрию. true - позиция занята.
//
// Обход ограничен ячейками, где есть препятствия: если footprint покрывает
// больше ячеек, чем препятствий в сцене, препятствия перебираются напрямую.
func (g *Geometry) Encroaching(fp Footprint, pos vec.Vec3Float, rot vec.Rotator) bool {
	fpBox := FootprintBox(fp, pos, rot)
	r, ok := g.cellRangeOf(fpBox)
	if !ok {
		return false
	}

	for _, idx := range g.large {
		if overlaps(fpBox, g.blockers[idx]) {
			return true
		}
	}
	if !g.indexed {
		return false
	}

	r = r.intersect(g.bounds)
	if r.empty() {
		return false
	}
	if r.area() > float64(len(g.blockers)) {
		for _, b := range g.blockers {
			if overlaps(fpBox, b) {
				return true
			}
		}
		return false
	}

	seen := make(map[int]struct{})
	for x := int(r.minX); x <= int(r.maxX); x++ {
		for y := int(r.minY); y <= int(r.maxY); y++ {
			for _, idx := range g.cells[vec.Vec2{X: x, Y: y}] {
				if _, ok := seen[idx]; ok {
					continue
				}
				seen[idx] = struct{}{}
				if overlaps(fpBox, g.blockers[idx]) {
					return true
				}
			}
		}
	}
	return false
}

// FindTeleportSpot ищет ближайшую к pos свободную позицию в пределах радиуса.
// Проверка идёт кольцами от центра наружу, первая свободная позиция побеждает.
func (g *Geometry) FindTeleportSpot(fp Footprint, pos vec.Vec3Float, rot vec.Rotator) (vec.Vec3Float, bool) {
	if !g.Encroaching(fp, pos, rot) {
		return pos, true
	}

	for _, offset := range g.probeOffsets() {
		candidate := pos.Add(offset)
		if !g.Encroaching(fp, candidate, rot) {
			return candidate, true
		}
	}
	return vec.Vec3Float{}, false
}

// probeOffsets строит смещения кольцами в плоскости XY и по Z вверх, по
// возрастанию расстояния. Кэшируется на время жизни Geometry.
func (g *Geometry) probeOffsets() []vec.Vec3Float {
	g.probeOnce.Do(func() {
		if g.teleportRadius <= 0 {
			return
		}
		rings := int(math.Ceil(g.teleportRadius / g.teleportStep))
		for ring := 1; ring <= rings; ring++ {
			r := float64(ring) * g.teleportStep
			if r > g.teleportRadius {
				r = g.teleportRadius
			}
			// Сначала подъём по Z: так находятся позиции над низкими препятствиями
			g.probes = append(g.probes, vec.Vec3Float{Z: r})

			segments := 8 * ring
			for i := 0; i < segments; i++ {
				angle := 2 * math.Pi * float64(i) / float64(segments)
				g.probes = append(g.probes, vec.Vec3Float{
					X: r * math.Cos(angle),
					Y: r * math.Sin(angle),
				})
			}
		}
	})
	return g.probes
}
