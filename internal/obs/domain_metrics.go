package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// OrdersCreatedTotal counts checkout outcomes.
	OrdersCreatedTotal *prometheus.CounterVec
	// OrderRefusalsTotal counts refused orders by reason.
	OrderRefusalsTotal *prometheus.CounterVec
	// PromoLookupsTotal counts public promo code lookups by result.
	PromoLookupsTotal *prometheus.CounterVec
	// EmailDeliveriesTotal tracks transactional email dispatch outcomes.
	EmailDeliveriesTotal *prometheus.CounterVec
	// OrderValueCents records the total value of accepted orders.
	OrderValueCents prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers storefront Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		OrdersCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Count of checkout attempts by outcome.",
		}, []string{"result"})
		OrderRefusalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_refusals_total",
			Help:      "Count of refused orders by refusal reason.",
		}, []string{"reason"})
		PromoLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_lookups_total",
			Help:      "Count of public promo code lookups by result.",
		}, []string{"result"})
		EmailDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_deliveries_total",
			Help:      "Count of transactional email dispatch outcomes.",
		}, []string{"template", "result"})
		OrderValueCents = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_value_cents",
			Help:      "Distribution of accepted order totals in cents.",
			Buckets:   []float64{1000, 2500, 5000, 10000, 25000, 50000, 100000},
		})

		mustRegisterCollector(reg, OrdersCreatedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrdersCreatedTotal = v
			}
		})
		mustRegisterCollector(reg, OrderRefusalsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrderRefusalsTotal = v
			}
		})
		mustRegisterCollector(reg, PromoLookupsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PromoLookupsTotal = v
			}
		})
		mustRegisterCollector(reg, EmailDeliveriesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				EmailDeliveriesTotal = v
			}
		})
		mustRegisterCollector(reg, OrderValueCents, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				OrderValueCents = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
