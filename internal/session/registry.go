// Package session хранит подключённых к сцене игроков: контроллеры,
// их состояния и пешки. Сервис выбора точки появления обращается к
// реестру, чтобы отказать незарегистрированным игрокам.
package session

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/annel0/spawnsvc/internal/physics"
	"github.com/annel0/spawnsvc/internal/vec"
)

var (
	// ErrPlayerNotFound - игрок с таким ID не зарегистрирован
	ErrPlayerNotFound = errors.New("player not found")
	// ErrPlayerExists - повторный Join с тем же ID
	ErrPlayerExists = errors.New("player already joined")
)

// Pawn - тело игрока в сцене
type Pawn struct {
	Position  vec.Vec3Float     `json:"position"`
	Rotation  vec.Rotator       `json:"rotation"`
	Footprint physics.Footprint `json:"footprint"`
	// Data - игровые данные пешки произвольного типа
	Data any `json:"-"`
}

// PlayerState - реплицируемое состояние игрока
type PlayerState struct {
	Name string `json:"name"`
	Pawn *Pawn  `json:"pawn,omitempty"`
}

// Controller - подключение игрока
type Controller struct {
	ID       string       `json:"id"`
	Index    int          `json:"index"`
	Local    bool         `json:"local"`
	JoinedAt time.Time    `json:"joined_at"`
	State    *PlayerState `json:"state,omitempty"`
	// Data - игровые данные контроллера произвольного типа
	Data any `json:"-"`
}

// snapshot копирует контроллер вместе с состоянием и пешкой
func (c *Controller) snapshot() Controller {
	cp := *c
	if c.State != nil {
		st := *c.State
		st.Pawn = copyPawn(st.Pawn)
		cp.State = &st
	}
	return cp
}

func copyPawn(p *Pawn) *Pawn {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// Registry - потокобезопасный реестр игроков в порядке подключения.
// Методы чтения возвращают копии.
type Registry struct {
	mu          sync.RWMutex
	controllers []*Controller
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{}
}

// Join регистрирует игрока. Индекс - позиция в порядке подключения.
func (r *Registry) Join(c Controller) (Controller, error) {
	if c.ID == "" {
		return Controller{}, fmt.Errorf("join: empty player id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(c.ID) >= 0 {
		return Controller{}, fmt.Errorf("%w: %s", ErrPlayerExists, c.ID)
	}
	if c.State == nil {
		c.State = &PlayerState{Name: c.ID}
	}
	if c.JoinedAt.IsZero() {
		c.JoinedAt = time.Now().UTC()
	}
	c.Index = len(r.controllers)

	st := *c.State
	st.Pawn = copyPawn(st.Pawn)
	c.State = &st
	stored := c
	r.controllers = append(r.controllers, &stored)
	return stored.snapshot(), nil
}

// Leave удаляет игрока; индексы последующих игроков сдвигаются
func (r *Registry) Leave(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, id)
	}
	r.controllers = slices.Delete(r.controllers, i, i+1)
	for j := i; j < len(r.controllers); j++ {
		r.controllers[j].Index = j
	}
	return nil
}

// SetPawn назначает игроку пешку (nil - снять)
func (r *Registry) SetPawn(id string, pawn *Pawn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, id)
	}
	r.controllers[i].State.Pawn = copyPawn(pawn)
	return nil
}

func (r *Registry) indexOf(id string) int {
	return slices.IndexFunc(r.controllers, func(c *Controller) bool { return c.ID == id })
}

// Controller возвращает игрока по ID
func (r *Registry) Controller(id string) (Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexOf(id)
	if i < 0 {
		return Controller{}, false
	}
	return r.controllers[i].snapshot(), true
}

// ControllerAt возвращает игрока по индексу подключения
func (r *Registry) ControllerAt(index int) (Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if index < 0 || index >= len(r.controllers) {
		return Controller{}, false
	}
	return r.controllers[index].snapshot(), true
}

// ControllerIndex возвращает индекс игрока или -1
func (r *Registry) ControllerIndex(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexOf(id)
}

// Controllers возвращает контроллеры; localOnly - только локальные
func (r *Registry) Controllers(localOnly bool) []Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Controller, 0, len(r.controllers))
	for _, c := range r.controllers {
		if localOnly && !c.Local {
			continue
		}
		out = append(out, c.snapshot())
	}
	return out
}

// States возвращает состояния игроков
func (r *Registry) States(localOnly bool) []*PlayerState {
	var out []*PlayerState
	for _, c := range r.Controllers(localOnly) {
		out = append(out, c.State)
	}
	return out
}

// Pawns возвращает пешки игроков, у которых она есть
func (r *Registry) Pawns(localOnly bool) []*Pawn {
	var out []*Pawn
	for _, s := range r.States(localOnly) {
		if s.Pawn != nil {
			out = append(out, s.Pawn)
		}
	}
	return out
}

// PlayersNumber - число игроков
func (r *Registry) PlayersNumber(localOnly bool) int {
	if !localOnly {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return len(r.controllers)
	}
	return len(r.Controllers(true))
}
