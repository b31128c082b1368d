package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shopfront/payment-service/pkg/logger"
)

// PaymentMetrics интерфейс для метрик платежных операций
type PaymentMetrics interface {
	IncMethodSaved(methodType string)
	IncMethodDeleted()
	IncIntentCreated(kind string)
	IncGatewayError(operation string)
	ObserveIntentAmount(amount float64, currency string)
}

type paymentMetrics struct {
	log            *logger.Logger
	methodsSaved   *prometheus.CounterVec
	methodsDeleted prometheus.Counter
	intentsCreated *prometheus.CounterVec
	gatewayErrors  *prometheus.CounterVec
	intentAmounts  *prometheus.HistogramVec
}

// NewPaymentMetrics создает новые метрики платежных операций
func NewPaymentMetrics(registry *prometheus.Registry, log *logger.Logger) PaymentMetrics {
	methodsSaved := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_methods_saved_total",
			Help: "The total number of saved payment methods",
		},
		[]string{"type"},
	)

	methodsDeleted := promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "payment_methods_deleted_total",
			Help: "The total number of deleted payment methods",
		},
	)

	intentsCreated := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_intents_created_total",
			Help: "The total number of created intents by kind",
		},
		[]string{"kind"},
	)

	gatewayErrors := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_gateway_errors_total",
			Help: "The total number of gateway errors by operation",
		},
		[]string{"operation"},
	)

	intentAmounts := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_intent_amount",
			Help:    "Payment intent amounts distribution (minor units)",
			Buckets: prometheus.ExponentialBuckets(100, 10, 5), // 100, 1000, 10000, 100000, 1000000
		},
		[]string{"currency"},
	)

	return &paymentMetrics{
		log:            log,
		methodsSaved:   methodsSaved,
		methodsDeleted: methodsDeleted,
		intentsCreated: intentsCreated,
		gatewayErrors:  gatewayErrors,
		intentAmounts:  intentAmounts,
	}
}

// IncMethodSaved увеличивает счетчик сохраненных способов оплаты
func (m *paymentMetrics) IncMethodSaved(methodType string) {
	m.methodsSaved.WithLabelValues(methodType).Inc()
}

// IncMethodDeleted увеличивает счетчик удаленных способов оплаты
func (m *paymentMetrics) IncMethodDeleted() {
	m.methodsDeleted.Inc()
}

// IncIntentCreated увеличивает счетчик созданных интентов
func (m *paymentMetrics) IncIntentCreated(kind string) {
	m.intentsCreated.WithLabelValues(kind).Inc()
}

// IncGatewayError увеличивает счетчик ошибок шлюза
func (m *paymentMetrics) IncGatewayError(operation string) {
	m.gatewayErrors.WithLabelValues(operation).Inc()
}

// ObserveIntentAmount записывает сумму интента
func (m *paymentMetrics) ObserveIntentAmount(amount float64, currency string) {
	m.intentAmounts.WithLabelValues(currency).Observe(amount)
}
