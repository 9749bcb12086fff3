package physics

import (
	"math"

	"github.com/annel0/spawnsvc/internal/vec"
)

// Footprint описывает коллизию актора для проверки пересечений: половины
// размеров ограничивающего бокса в локальных осях актора.
type Footprint struct {
	HalfExtents vec.Vec3Float `json:"half_extents" yaml:"half_extents" bson:"half_extents"`
}

// DefaultFootprint - нулевой footprint, используется когда footprint не задан
func DefaultFootprint() Footprint {
	return Footprint{}
}

// NewBoxFootprint создаёт footprint по полным размерам бокса
func NewBoxFootprint(width, depth, height float64) Footprint {
	return Footprint{HalfExtents: vec.Vec3Float{X: width / 2, Y: depth / 2, Z: height / 2}}
}

// Valid проверяет, что все половины размеров конечны и неотрицательны
func (fp Footprint) Valid() bool {
	for _, v := range []float64{fp.HalfExtents.X, fp.HalfExtents.Y, fp.HalfExtents.Z} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Resolve возвращает footprint или дефолтный, если fp == nil или невалиден
func Resolve(fp *Footprint) Footprint {
	if fp == nil || !fp.Valid() {
		return DefaultFootprint()
	}
	return *fp
}

// Box - выровненный по осям бокс (AABB)
type Box struct {
	Min vec.Vec3Float `json:"min" yaml:"min" bson:"min"`
	Max vec.Vec3Float `json:"max" yaml:"max" bson:"max"`
}

// NewBox создаёт бокс по центру и половинам размеров
func NewBox(center, half vec.Vec3Float) Box {
	return Box{Min: center.Sub(half), Max: center.Add(half)}
}

// Valid проверяет, что Min <= Max по всем осям
func (b Box) Valid() bool {
	return b.Min.X <= b.Max.X && b.Min.Y <= b.Max.Y && b.Min.Z <= b.Max.Z
}

// Center возвращает центр бокса
func (b Box) Center() vec.Vec3Float {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Intersects проверяет строгое пересечение двух боксов.
// Касание гранями пересечением не считается.
func (b Box) Intersects(other Box) bool {
	return b.Min.X < other.Max.X && b.Max.X > other.Min.X &&
		b.Min.Y < other.Max.Y && b.Max.Y > other.Min.Y &&
		b.Min.Z < other.Max.Z && b.Max.Z > other.Min.Z
}

// ContainsPoint проверяет, находится ли точка внутри бокса (строго)
func (b Box) ContainsPoint(p vec.Vec3Float) bool {
	return p.X > b.Min.X && p.X < b.Max.X &&
		p.Y > b.Min.Y && p.Y < b.Max.Y &&
		p.Z > b.Min.Z && p.Z < b.Max.Z
}

// FootprintBox возвращает AABB footprint'а, поставленного в позицию pos с
// ориентацией rot. Учитывается только рыскание (yaw).
func FootprintBox(fp Footprint, pos vec.Vec3Float, rot vec.Rotator) Box {
	yaw := rot.YawRadians()
	c := math.Abs(math.Cos(yaw))
	s := math.Abs(math.Sin(yaw))

	half := vec.Vec3Float{
		X: c*fp.HalfExtents.X + s*fp.HalfExtents.Y,
		Y: s*fp.HalfExtents.X + c*fp.HalfExtents.Y,
		Z: fp.HalfExtents.Z,
	}
	return NewBox(pos, half)
}

// overlaps проверяет footprint против бокса препятствия. Нулевой footprint
// вырождается в точку и блокируется, только если точка внутри препятствия.
func overlaps(fpBox Box, blocker Box) bool {
	if fpBox.Min.Equals(fpBox.Max) {
		return blocker.ContainsPoint(fpBox.Min)
	}
	return fpBox.Intersects(blocker)
}
