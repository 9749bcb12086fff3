package vec

import "math"

// Vec2 представляет целочисленные 2D координаты (ячейки сетки)
type Vec2 struct {
	X, Y int
}

// CellOf возвращает ячейку сетки размера cellSize, в которую попадает точка (x, y)
func CellOf(x, y, cellSize float64) Vec2 {
	return Vec2{X: int(math.Floor(x / cellSize)), Y: int(math.Floor(y / cellSize))}
}

// DistanceTo вычисляет расстояние до другой ячейки
func (v Vec2) DistanceTo(other Vec2) float64 {
	dx := float64(v.X - other.X)
	dy := float64(v.Y - other.Y)
	return math.Sqrt(dx*dx + dy*dy)
}
