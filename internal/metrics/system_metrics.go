package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shopfront/payment-service/pkg/logger"
)

// SystemMetrics интерфейс для системных метрик процесса
type SystemMetrics interface {
	StartRecording(interval time.Duration)
	Stop()
}

type systemMetrics struct {
	log         *logger.Logger
	goroutines  prometheus.Gauge
	memoryAlloc prometheus.Gauge
	memorySys   prometheus.Gauge
	gcRuns      prometheus.Gauge
	stopCh      chan struct{}
}

// NewSystemMetrics создает новые системные метрики
func NewSystemMetrics(registry *prometheus.Registry, log *logger.Logger) SystemMetrics {
	return &systemMetrics{
		log: log,
		goroutines: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "service_goroutines",
			Help: "Current number of goroutines",
		}),
		memoryAlloc: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "service_memory_alloc_bytes",
			Help: "Currently allocated heap memory in bytes",
		}),
		memorySys: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "service_memory_sys_bytes",
			Help: "Total memory obtained from the OS in bytes",
		}),
		gcRuns: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "service_gc_runs",
			Help: "Number of completed GC cycles",
		}),
		stopCh: make(chan struct{}),
	}
}

func (m *systemMetrics) record() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAlloc.Set(float64(memStats.Alloc))
	m.memorySys.Set(float64(memStats.Sys))
	m.gcRuns.Set(float64(memStats.NumGC))
}

// StartRecording начинает периодическую запись метрик
func (m *systemMetrics) StartRecording(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.record()
			case <-m.stopCh:
				return
			}
		}
	}()
	m.log.Infow("System metrics recording started", "interval", interval)
}

// Stop останавливает запись метрик
func (m *systemMetrics) Stop() {
	close(m.stopCh)
	m.log.Infow("System metrics recording stopped")
}
