package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/sisyphus/internal/model"
)

// Dispatch mode label values.
const (
	modeBlocking = "blocking"
	modeDetached = "detached"
)

// Metrics records engine activity in Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	submitted *prometheus.CounterVec
	runtime   *prometheus.HistogramVec
	errors    *prometheus.CounterVec
	inFlight  *prometheus.GaugeVec
}

// NewMetrics creates the engine collectors and registers them with reg.
// Collectors already registered under the same names are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	submitted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sisyphus_tasks_submitted_total",
		Help: "Total number of accepted task submissions.",
	}, []string{"type", "mode"})
	runtime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sisyphus_task_runtime_seconds",
		Help:    "Time between a task's start and finish, in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
	execErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sisyphus_task_execution_errors_total",
		Help: "Total number of lifecycle transitions that could not be persisted.",
	}, []string{"stage"})
	inFlight := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sisyphus_tasks_in_flight",
		Help: "Number of tasks currently running a simulator.",
	}, []string{"type"})

	var err error
	if submitted, err = registerCollector(reg, submitted); err != nil {
		return nil, err
	}
	if runtime, err = registerCollector(reg, runtime); err != nil {
		return nil, err
	}
	if execErrors, err = registerCollector(reg, execErrors); err != nil {
		return nil, err
	}
	if inFlight, err = registerCollector(reg, inFlight); err != nil {
		return nil, err
	}

	// Pre-initialize label combinations so they appear with value 0 from startup.
	for _, t := range model.TaskTypes {
		submitted.WithLabelValues(string(t), modeBlocking)
		submitted.WithLabelValues(string(t), modeDetached)
		inFlight.WithLabelValues(string(t))
	}
	execErrors.WithLabelValues(string(StageStart))
	execErrors.WithLabelValues(string(StageFinish))

	return &Metrics{
		submitted: submitted,
		runtime:   runtime,
		errors:    execErrors,
		inFlight:  inFlight,
	}, nil
}

func (m *Metrics) recordSubmitted(t model.TaskType, blocking bool) {
	if m == nil {
		return
	}
	mode := modeDetached
	if blocking {
		mode = modeBlocking
	}
	m.submitted.WithLabelValues(string(t), mode).Inc()
}

func (m *Metrics) recordRuntime(t model.TaskType, d time.Duration) {
	if m == nil {
		return
	}
	m.runtime.WithLabelValues(string(t)).Observe(d.Seconds())
}

func (m *Metrics) recordError(stage Stage) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(string(stage)).Inc()
}

func (m *Metrics) addInFlight(t model.TaskType, delta float64) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(string(t)).Add(delta)
}

func registerCollector[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			existing, ok := are.ExistingCollector.(T)
			if !ok {
				var zero T
				return zero, fmt.Errorf("collector type mismatch for existing registration")
			}
			return existing, nil
		}
		var zero T
		return zero, err
	}
	return c, nil
}
