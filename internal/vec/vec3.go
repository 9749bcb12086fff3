package vec

import (
	"fmt"
	"math"
)

// Vec3Float представляет трехмерный вектор с плавающими координатами.
// Z направлена вверх.
type Vec3Float struct {
	X float64 `json:"x" yaml:"x" bson:"x"`
	Y float64 `json:"y" yaml:"y" bson:"y"`
	Z float64 `json:"z" yaml:"z" bson:"z"`
}

// Add складывает два вектора
func (v Vec3Float) Add(other Vec3Float) Vec3Float {
	return Vec3Float{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub вычитает вектор
func (v Vec3Float) Sub(other Vec3Float) Vec3Float {
	return Vec3Float{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Mul умножает вектор на скаляр
func (v Vec3Float) Mul(scalar float64) Vec3Float {
	return Vec3Float{X: v.X * scalar, Y: v.Y * scalar, Z: v.Z * scalar}
}

// Length возвращает длину вектора
func (v Vec3Float) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// DistanceTo возвращает расстояние до другой точки
func (v Vec3Float) DistanceTo(other Vec3Float) float64 {
	return v.Sub(other).Length()
}

// Equals проверяет равенство векторов
func (v Vec3Float) Equals(other Vec3Float) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// String форматирует вектор как "X=.. Y=.. Z=.."
func (v Vec3Float) String() string {
	return fmt.Sprintf("X=%.3f Y=%.3f Z=%.3f", v.X, v.Y, v.Z)
}

// Rotator - ориентация в градусах
type Rotator struct {
	Pitch float64 `json:"pitch" yaml:"pitch" bson:"pitch"`
	Yaw   float64 `json:"yaw" yaml:"yaw" bson:"yaw"`
	Roll  float64 `json:"roll" yaml:"roll" bson:"roll"`
}

// YawRadians возвращает рыскание в радианах
func (r Rotator) YawRadians() float64 {
	return r.Yaw * math.Pi / 180
}

func (r Rotator) String() string {
	return fmt.Sprintf("P=%.2f Y=%.2f R=%.2f", r.Pitch, r.Yaw, r.Roll)
}
