package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"stableguard/core/events"
	"stableguard/core/types"
	"stableguard/native/auction"
)

type auctionMetrics struct {
	opened     prometheus.Counter
	settled    prometheus.Counter
	cleaned    prometheus.Counter
	commits    prometheus.Counter
	reveals    prometheus.Counter
	mevBlocked *prometheus.CounterVec
	flashloans prometheus.Counter
}

var (
	auctionMetricsOnce sync.Once
	auctionRegistry    *auctionMetrics
)

// Auctions returns the metrics registry tracking auction lifecycle events.
func Auctions() *auctionMetrics {
	auctionMetricsOnce.Do(func() {
		auctionRegistry = &auctionMetrics{
			opened: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stableguard",
				Subsystem: "auction",
				Name:      "opened_total",
				Help:      "Count of collateral auctions opened.",
			}),
			settled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stableguard",
				Subsystem: "auction",
				Name:      "settled_total",
				Help:      "Count of auctions settled by a winning bid.",
			}),
			cleaned: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stableguard",
				Subsystem: "auction",
				Name:      "cleaned_total",
				Help:      "Count of expired auctions closed by cleanup.",
			}),
			commits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stableguard",
				Subsystem: "auction",
				Name:      "commits_total",
				Help:      "Count of bid commitments recorded.",
			}),
			reveals: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stableguard",
				Subsystem: "auction",
				Name:      "reveals_total",
				Help:      "Count of commitments revealed.",
			}),
			mevBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stableguard",
				Subsystem: "auction",
				Name:      "mev_rejections_total",
				Help:      "Count of bids rejected by protection heuristics, by reason.",
			}, []string{"reason"}),
			flashloans: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "stableguard",
				Subsystem: "auction",
				Name:      "flashloan_detections_total",
				Help:      "Count of flashloan balance-spike detections.",
			}),
		}
		prometheus.MustRegister(
			auctionRegistry.opened,
			auctionRegistry.settled,
			auctionRegistry.cleaned,
			auctionRegistry.commits,
			auctionRegistry.reveals,
			auctionRegistry.mevBlocked,
			auctionRegistry.flashloans,
		)
	})
	return auctionRegistry
}

// eventCarrier is implemented by engine events that carry a structured
// payload alongside their type.
type eventCarrier interface {
	Event() *types.Event
}

// MetricsEmitter adapts the engine's event stream onto the prometheus
// registry so lifecycle telemetry needs no extra wiring inside the engine.
type MetricsEmitter struct {
	metrics *auctionMetrics
	next    events.Emitter
}

// NewMetricsEmitter builds an emitter that counts events and forwards them to
// next (which may be nil).
func NewMetricsEmitter(next events.Emitter) *MetricsEmitter {
	return &MetricsEmitter{metrics: Auctions(), next: next}
}

// Emit implements events.Emitter.
func (m *MetricsEmitter) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	switch evt.EventType() {
	case auction.EventTypeAuctionOpened:
		m.metrics.opened.Inc()
	case auction.EventTypeBidSettled:
		m.metrics.settled.Inc()
	case auction.EventTypeAuctionExpired:
		m.metrics.cleaned.Inc()
	case auction.EventTypeCommitRecorded:
		m.metrics.commits.Inc()
	case auction.EventTypeRevealRecorded:
		m.metrics.reveals.Inc()
	case auction.EventTypeMevDetected:
		reason := "unknown"
		if carrier, ok := evt.(eventCarrier); ok {
			if payload := carrier.Event(); payload != nil {
				if r, exists := payload.Attributes["reason"]; exists {
					reason = r
				}
			}
		}
		m.metrics.mevBlocked.WithLabelValues(reason).Inc()
	case auction.EventTypeFlashloanDetected:
		m.metrics.flashloans.Inc()
	}
	if m.next != nil {
		m.next.Emit(evt)
	}
}
