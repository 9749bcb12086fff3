package spawn

import (
	"github.com/annel0/spawnsvc/internal/logging"
	"github.com/annel0/spawnsvc/internal/physics"
	"github.com/annel0/spawnsvc/internal/util"
)

// Outcome - каким путём был получен результат выбора
type Outcome int

const (
	// OutcomeNone - кандидатов нет
	OutcomeNone Outcome = iota
	// OutcomeTagged - выбрана подходящая точка с запрошенным тегом
	OutcomeTagged
	// OutcomeUnoccupied - выбрана свободная точка
	OutcomeUnoccupied
	// OutcomeSalvaged - выбрана занятая точка, рядом с которой есть свободное место
	OutcomeSalvaged
	// OutcomePreviewShortCircuit - перебор прерван preview-точкой
	OutcomePreviewShortCircuit
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeTagged:
		return "tagged"
	case OutcomeUnoccupied:
		return "unoccupied"
	case OutcomeSalvaged:
		return "salvaged"
	case OutcomePreviewShortCircuit:
		return "preview_short_circuit"
	default:
		return "unknown"
	}
}

// MarshalText сериализует Outcome строкой (JSON, YAML)
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result - результат выбора. Point == nil означает отсутствие точки.
type Result struct {
	Point   *Point  `json:"point,omitempty"`
	Outcome Outcome `json:"outcome"`
	// Skipped - сколько точек с запрошенным тегом не подошли по месту
	Skipped int `json:"skipped"`
}

// Found сообщает, выбрана ли точка
func (r Result) Found() bool {
	return r.Point != nil
}

// Selector выбирает точку появления среди точек Provider'а.
// Селектор ничего не изменяет в сцене.
type Selector struct {
	provider Provider
	tester   OverlapTester
	random   Random
	log      *logging.Logger
}

// NewSelector создаёт селектор. random == nil - генератор с сидом от времени.
func NewSelector(provider Provider, tester OverlapTester, random Random) *Selector {
	if random == nil {
		random = NewRand(0)
	}
	return &Selector{
		provider: provider,
		tester:   tester,
		random:   random,
		log:      logging.GetSpawnLogger(),
	}
}

// SelectSpawnPoint возвращает выбранную точку или nil
func (s *Selector) SelectSpawnPoint(req Request) *Point {
	return s.Select(req).Point
}

// Select выполняет выбор и сообщает, каким путём он завершился
func (s *Selector) Select(req Request) Result {
	fp := physics.Resolve(req.Footprint)

	var skipped int
	if req.Tag != "" {
		var matching []Point
		for p := range s.provider.SpawnPoints() {
			if p.Tag != req.Tag {
				continue
			}
			if !s.tester.Encroaching(fp, p.Position, p.Rotation) {
				matching = append(matching, p)
			} else {
				skipped++
				s.log.Info("Skipping player start at [%s] because player can't fit in", p.Position.String())
			}
		}

		if len(matching) > 0 {
			return Result{Point: s.pick(matching), Outcome: OutcomeTagged, Skipped: skipped}
		}
	}

	var found *Point
	var unoccupied, occupied []Point
	for p := range s.provider.SpawnPoints() {
		if p.Preview {
			// Первая preview-точка завершает перебор. found к этому моменту
			// всегда nil: результат пустой, даже если свободные точки уже
			// встречались.
			return Result{Point: found, Outcome: OutcomePreviewShortCircuit, Skipped: skipped}
		}

		if !s.tester.Encroaching(fp, p.Position, p.Rotation) {
			unoccupied = append(unoccupied, p)
		} else if _, ok := s.tester.FindTeleportSpot(fp, p.Position, p.Rotation); ok {
			occupied = append(occupied, p)
		}
	}

	switch {
	case len(unoccupied) > 0:
		return Result{Point: s.pick(unoccupied), Outcome: OutcomeUnoccupied, Skipped: skipped}
	case len(occupied) > 0:
		return Result{Point: s.pick(occupied), Outcome: OutcomeSalvaged, Skipped: skipped}
	}
	return Result{Outcome: OutcomeNone, Skipped: skipped}
}

// pick выбирает случайный элемент непустого среза
func (s *Selector) pick(candidates []Point) *Point {
	i := util.ClampIndex(len(candidates), s.random.IntRange(0, len(candidates)-1))
	p := candidates[i]
	return &p
}
