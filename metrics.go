package main

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/numbleroot/dotlist/node"
)

type DotlistMetrics struct {
	Node    *node.Metrics
	Updates metrics.Counter
	Views   metrics.Counter
}

func NewDotlistMetrics(prometheusAddr string) *DotlistMetrics {

	m := &DotlistMetrics{}

	if prometheusAddr == "" {

		m.Node = node.DiscardMetrics()
		m.Updates = discard.NewCounter()
		m.Views = discard.NewCounter()

		return m
	}

	m.Node = &node.Metrics{
		DeltasSent: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "dotlist",
			Subsystem: "node",
			Name:      "deltas_sent_total",
			Help:      "Number of delta messages broadcast to peers",
		}, nil),
		DeltasReceived: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "dotlist",
			Subsystem: "node",
			Name:      "deltas_received_total",
			Help:      "Number of well-formed delta messages received off the wire",
		}, nil),
		DeltasApplied: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "dotlist",
			Subsystem: "node",
			Name:      "deltas_applied_total",
			Help:      "Number of peer delta messages merged into local state",
		}, nil),
		AntiEntropyRounds: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "dotlist",
			Subsystem: "node",
			Name:      "anti_entropy_rounds_total",
			Help:      "Number of periodic context broadcasts",
		}, nil),
		CorrectiveDeltas: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "dotlist",
			Subsystem: "node",
			Name:      "corrective_deltas_total",
			Help:      "Number of deltas sent in response to lagging peer contexts",
		}, nil),
		MalformedMsgs: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "dotlist",
			Subsystem: "node",
			Name:      "malformed_messages_total",
			Help:      "Number of dropped undecodable datagrams",
		}, nil),
	}

	m.Updates = prometheus.NewCounterFrom(prom.CounterOpts{
		Namespace: "dotlist",
		Subsystem: "node",
		Name:      "updates_total",
		Help:      "Number of committed local transactions",
	}, nil)

	m.Views = prometheus.NewCounterFrom(prom.CounterOpts{
		Namespace: "dotlist",
		Subsystem: "node",
		Name:      "views_total",
		Help:      "Number of local reads",
	}, nil)

	return m
}

func runPromHTTP(logger log.Logger, addr string) {

	if addr == "" {
		level.Debug(logger).Log("msg", "prometheus addr is empty, not exposing prometheus metrics")
		return
	}

	http.Handle("/metrics", promhttp.HandlerFor(prom.DefaultGatherer, promhttp.HandlerOpts{}))

	level.Info(logger).Log("msg", "prometheus handler listening", "addr", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		level.Warn(logger).Log("msg", "failed to serve prometheus metrics", "err", err)
	}
}
