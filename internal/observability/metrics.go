package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BootMetrics records per-stage timings of one boot. The process is replaced
// by the service manager, so the only way out is a textfile for the node
// exporter textfile collector.
type BootMetrics struct {
	registry      *prometheus.Registry
	stageDuration *prometheus.GaugeVec
	stageSuccess  *prometheus.GaugeVec
	bootStart     prometheus.Gauge
}

func NewBootMetrics() *BootMetrics {
	m := &BootMetrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "nixos_init",
				Subsystem: "boot",
				Name:      "stage_duration_seconds",
				Help:      "Wall time spent in each boot stage.",
			},
			[]string{"stage"},
		),
		stageSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "nixos_init",
				Subsystem: "boot",
				Name:      "stage_success",
				Help:      "1 if the boot stage completed, 0 if it failed.",
			},
			[]string{"stage"},
		),
		bootStart: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nixos_init",
			Subsystem: "boot",
			Name:      "start_time_seconds",
			Help:      "Unix time the boot sequence started.",
		}),
	}
	m.registry.MustRegister(m.stageDuration, m.stageSuccess, m.bootStart)
	return m
}

func (m *BootMetrics) MarkStart(at time.Time) {
	m.bootStart.Set(float64(at.UnixNano()) / 1e9)
}

func (m *BootMetrics) ObserveStage(stage string, d time.Duration, err error) {
	m.stageDuration.WithLabelValues(stage).Set(d.Seconds())
	success := 1.0
	if err != nil {
		success = 0
	}
	m.stageSuccess.WithLabelValues(stage).Set(success)
}

func (m *BootMetrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the collected metrics to path, creating its directory.
func (m *BootMetrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics textfile dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("metrics textfile (%s): %w", path, err)
	}
	return nil
}
