package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	propertyFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "missionctl",
			Subsystem: "readiness",
			Name:      "property_fetches_total",
			Help:      "Property fetches issued, by interface and result.",
		},
		[]string{"interface", "result"},
	)
	waiterCancellations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "missionctl",
			Subsystem: "readiness",
			Name:      "waiter_cancellations_total",
			Help:      "Readiness waiters cancelled before their fetch completed.",
		},
	)
	registryClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "missionctl",
			Subsystem: "registry",
			Name:      "clients",
			Help:      "Clients currently known to the registry.",
		},
	)
	registryStartupLock = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "missionctl",
			Subsystem: "registry",
			Name:      "startup_lock",
			Help:      "Outstanding startup lock holders; zero once the registry is ready.",
		},
	)
	registryIgnoredNames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "missionctl",
			Subsystem: "registry",
			Name:      "invalid_names_total",
			Help:      "Client-prefixed bus names ignored for failing validation.",
		},
	)
	handlerSelections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "missionctl",
			Subsystem: "dispatch",
			Name:      "handler_selections_total",
			Help:      "Handler ranking outcomes.",
		},
		[]string{"outcome"},
	)
	connectionAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "missionctl",
			Subsystem: "account",
			Name:      "connection_attempts_total",
			Help:      "Account connection filter-chain outcomes.",
		},
		[]string{"success"},
	)
)

const (
	SelectionRanked    = "ranked"
	SelectionPreferred = "preferred"
	SelectionNone      = "none"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			propertyFetches,
			waiterCancellations,
			registryClients,
			registryStartupLock,
			registryIgnoredNames,
			handlerSelections,
			connectionAttempts,
		)
	})
}

func RecordPropertyFetch(iface, result string) {
	RegisterMetrics()
	propertyFetches.WithLabelValues(iface, result).Inc()
}

func RecordWaiterCancelled() {
	RegisterMetrics()
	waiterCancellations.Inc()
}

func SetRegistryClients(n int) {
	RegisterMetrics()
	registryClients.Set(float64(n))
}

func SetStartupLock(n int) {
	RegisterMetrics()
	registryStartupLock.Set(float64(n))
}

func RecordInvalidClientName() {
	RegisterMetrics()
	registryIgnoredNames.Inc()
}

func RecordHandlerSelection(outcome string) {
	RegisterMetrics()
	handlerSelections.WithLabelValues(outcome).Inc()
}

func RecordConnectionAttempt(success bool) {
	RegisterMetrics()
	connectionAttempts.WithLabelValues(strconv.FormatBool(success)).Inc()
}
