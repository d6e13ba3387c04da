// Package metrics exposes Prometheus counters for capacity decisions, sale
// reviews and HTTP traffic.
package metrics

import (
	"errors"
	"strconv"

	"agribalance-backend/internal/apperror"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agribalance"

// Metrics methods are safe on a nil receiver, so services can run without a
// registry in tests.
type Metrics struct {
	registry    *prometheus.Registry
	allocations *prometheus.CounterVec
	releases    *prometheus.CounterVec
	reviews     *prometheus.CounterVec
	requests    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cultivation_starts_total",
			Help:      "Cultivation start attempts by capacity source and outcome.",
		}, []string{"source", "outcome"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capacity_releases_total",
			Help:      "Area released back to a capacity source on cancellation.",
		}, []string{"source"}),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "harvest_sale_reviews_total",
			Help:      "Admin decisions on harvest sales.",
		}, []string{"decision"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.allocations, m.releases, m.reviews, m.requests,
	)
	return m
}

// Outcome labels an operation result: "accepted", the rejection kind, or
// "error" for storage faults.
func Outcome(err error) string {
	if err == nil {
		return "accepted"
	}
	if e, ok := apperror.As(err); ok {
		return string(e.Kind)
	}
	return "error"
}

// ObserveStart counts a cultivation start. source is empty for unrestricted
// starts and for attempts rejected before a source was resolved.
func (m *Metrics) ObserveStart(source string, err error) {
	if m == nil {
		return
	}
	if source == "" {
		source = "none"
	}
	m.allocations.WithLabelValues(source, Outcome(err)).Inc()
}

func (m *Metrics) ObserveRelease(source string) {
	if m == nil {
		return
	}
	m.releases.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveReview(decision string) {
	if m == nil {
		return
	}
	m.reviews.WithLabelValues(decision).Inc()
}

// Middleware counts every request once the handler chain has returned. Errors
// are counted with the status the error handler will render.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if e, ok := apperror.As(err); ok {
				status = apperror.StatusCode(e.Kind)
			} else if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		m.requests.WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(status)).Inc()
		return err
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
