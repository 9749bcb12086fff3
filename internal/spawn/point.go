// Package spawn выбирает точку появления (player start) для актора, входящего
// в сцену: сначала среди точек с запрошенным тегом, затем среди всех точек
// сцены с учётом занятости.
package spawn

import (
	"iter"
	"slices"

	"github.com/annel0/spawnsvc/internal/physics"
	"github.com/annel0/spawnsvc/internal/vec"
)

// Point - кандидат на точку появления. Точки принадлежат сцене и селектором
// не изменяются.
type Point struct {
	ID       string        `json:"id" yaml:"id" bson:"id"`
	Tag      string        `json:"tag,omitempty" yaml:"tag,omitempty" bson:"tag,omitempty"`
	Position vec.Vec3Float `json:"position" yaml:"position" bson:"position"`
	Rotation vec.Rotator   `json:"rotation" yaml:"rotation" bson:"rotation"`
	// Preview помечает редакторскую точку "play from here"
	Preview bool `json:"preview,omitempty" yaml:"preview,omitempty" bson:"preview,omitempty"`
}

// Request - запрос выбора точки. Пустой Tag - без предпочтений,
// nil Footprint - дефолтный (нулевой) footprint.
type Request struct {
	Tag       string             `json:"tag,omitempty"`
	Footprint *physics.Footprint `json:"footprint,omitempty"`
}

// Provider перечисляет точки появления сцены. Последовательность конечна,
// перезапускаема и стабильна для неизменного состояния сцены.
type Provider interface {
	SpawnPoints() iter.Seq[Point]
}

// OverlapTester отвечает на вопросы о блокирующей геометрии.
// *physics.Geometry реализует этот интерфейс.
type OverlapTester interface {
	// Encroaching - true, если footprint в позиции пересекает геометрию
	Encroaching(fp physics.Footprint, pos vec.Vec3Float, rot vec.Rotator) bool
	// FindTeleportSpot - true, если рядом есть свободная позиция
	FindTeleportSpot(fp physics.Footprint, pos vec.Vec3Float, rot vec.Rotator) (vec.Vec3Float, bool)
}

// Random выбирает равномерно распределённое целое в [lo, hi] включительно
type Random interface {
	IntRange(lo, hi int) int
}

// SliceProvider - Provider поверх среза в порядке элементов
type SliceProvider []Point

// SpawnPoints реализует Provider
func (s SliceProvider) SpawnPoints() iter.Seq[Point] {
	return slices.Values(s)
}
