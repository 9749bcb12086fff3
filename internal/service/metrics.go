package service

import "github.com/prometheus/client_golang/prometheus"

// Metrics - метрики выбора точек появления
type Metrics struct {
	selections *prometheus.CounterVec
	skipped    prometheus.Counter
	duration   prometheus.Histogram
	scenes     prometheus.Gauge
	players    prometheus.Gauge
}

// NewMetrics создаёт и регистрирует метрики в reg (nil - глобальный регистр)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spawn_selections_total",
			Help: "Число выборов точки появления по исходу",
		}, []string{"outcome"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spawn_tagged_skipped_total",
			Help: "Точки с запрошенным тегом, пропущенные из-за занятости",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spawn_selection_duration_seconds",
			Help:    "Длительность выбора точки появления",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		scenes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spawn_cached_geometries",
			Help: "Число сцен с построенным индексом геометрии",
		}),
		players: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spawn_players",
			Help: "Число зарегистрированных игроков",
		}),
	}
	reg.MustRegister(m.selections, m.skipped, m.duration, m.scenes, m.players)
	return m
}
