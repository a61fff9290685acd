package logrollx

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 是滚动引擎的 Prometheus 指标，按写入器名称区分
type Metrics struct {
	Rotations        *prometheus.CounterVec
	RotationFailures *prometheus.CounterVec
	Compressions     *prometheus.CounterVec
	ArchivesDeleted  *prometheus.CounterVec
	WriteFailures    *prometheus.CounterVec
}

// NewMetrics 创建未注册的指标
func NewMetrics() *Metrics {
	const ns = "logrollx"
	return &Metrics{
		Rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "rotations_total",
			Help:      "Number of completed rollovers.",
		}, []string{"appender", "trigger"}),
		RotationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "rotation_failures_total",
			Help:      "Number of rollovers that failed and were deferred.",
		}, []string{"appender"}),
		Compressions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "compressions_total",
			Help:      "Number of archive compression tasks by result.",
		}, []string{"result"}),
		ArchivesDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "archives_deleted_total",
			Help:      "Number of archive files removed by the retention policy.",
		}, []string{"reason"}),
		WriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "write_failures_total",
			Help:      "Number of failed writes to the active file.",
		}, []string{"appender"}),
	}
}

// Collectors 返回全部指标
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Rotations, m.RotationFailures, m.Compressions, m.ArchivesDeleted, m.WriteFailures}
}

// Register 将全部指标注册到 reg
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
