// Package metrics exposes Prometheus counters for the bot. One Metrics value
// satisfies the metrics interfaces of the currency, llm, pending, services
// and worker packages.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	commands      *prometheus.CounterVec
	messages      *prometheus.CounterVec
	errors        *prometheus.CounterVec
	expensesSaved *prometheus.CounterVec
	pending       *prometheus.CounterVec
	rateLookups   *prometheus.CounterVec
	llmCalls      *prometheus.CounterVec
	llmDuration   *prometheus.HistogramVec
	rateLimited   prometheus.Counter
	syncs         *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kazo_commands_processed_total",
			Help: "Total number of processed commands by name",
		}, []string{"command"}),
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kazo_messages_processed_total",
			Help: "Total number of processed messages by type",
		}, []string{"type"}), // text, photo, document, reply
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kazo_errors_total",
			Help: "Total number of handler errors by type",
		}, []string{"type"}),
		expensesSaved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kazo_expenses_saved_total",
			Help: "Total number of saved expenses by source",
		}, []string{"source"}),
		pending: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kazo_pending_transitions_total",
			Help: "Pending expense transitions by outcome",
		}, []string{"outcome"}),
		rateLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kazo_rate_lookups_total",
			Help: "Exchange rate lookups by outcome",
		}, []string{"outcome"}),
		llmCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kazo_llm_calls_total",
			Help: "LLM calls by backend and outcome",
		}, []string{"backend", "outcome"}),
		llmDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kazo_llm_call_duration_seconds",
			Help:    "Duration of LLM calls in seconds",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		}, []string{"backend"}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "kazo_rate_limited_total",
			Help: "Requests rejected by the per-chat LLM rate limit",
		}),
		syncs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kazo_sheet_syncs_total",
			Help: "Expense events mirrored to the spreadsheet",
		}, []string{"event", "ok"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCommand(command string) { m.commands.WithLabelValues(command).Inc() }
func (m *Metrics) ObserveMessage(kind string)    { m.messages.WithLabelValues(kind).Inc() }
func (m *Metrics) ObserveError(kind string)      { m.errors.WithLabelValues(kind).Inc() }
func (m *Metrics) ObserveRateLimited()           { m.rateLimited.Inc() }

func (m *Metrics) ObserveExpenseSaved(source string) {
	m.expensesSaved.WithLabelValues(source).Inc()
}

func (m *Metrics) ObservePending(outcome string) {
	m.pending.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRateLookup(outcome string) {
	m.rateLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLLMCall(backend, outcome string, elapsed time.Duration) {
	m.llmCalls.WithLabelValues(backend, outcome).Inc()
	m.llmDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveSync(event string, ok bool) {
	m.syncs.WithLabelValues(event, strconv.FormatBool(ok)).Inc()
}
