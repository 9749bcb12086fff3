package spawn

import (
	"math/rand"
	"sync"
	"time"
)

// Rand - Random поверх math/rand. Не потокобезопасен.
type Rand struct {
	r *rand.Rand
}

// NewRand создаёт генератор с указанным сидом. seed == 0 - сид от текущего времени.
func NewRand(seed int64) *Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Rand{r: rand.New(rand.NewSource(seed))}
}

// IntRange возвращает случайное число в [lo, hi]. При hi < lo возвращает lo.
func (r *Rand) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.r.Intn(hi-lo+1)
}

// LockedRandom сериализует доступ к общему Random из нескольких горутин
type LockedRandom struct {
	mu  sync.Mutex
	src Random
}

// NewLockedRandom оборачивает src мьютексом
func NewLockedRandom(src Random) *LockedRandom {
	return &LockedRandom{src: src}
}

// IntRange реализует Random
func (l *LockedRandom) IntRange(lo, hi int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.IntRange(lo, hi)
}
