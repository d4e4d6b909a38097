package node

import (
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/pkg/errors"

	"github.com/numbleroot/dotlist/comm"
	"github.com/numbleroot/dotlist/crdt"
)

// Constants

// DefaultAntiEntropyInterval is the period of the bare
// context broadcast when the config does not override it.
const DefaultAntiEntropyInterval = 10 * time.Second

// Variables

// ErrClosed is returned for requests against a service
// that has shut down.
var ErrClosed = errors.New("replication service is closed")

// Interfaces

// Broadcaster sends one sync message to all peers on the
// local network. comm.Sender is the production
// implementation.
type Broadcaster interface {
	Broadcast(m *comm.Message) error
}

// Service is the replication engine of one replica. All
// methods are safe to call from any goroutine; execution
// is serialized onto the owner loop.
type Service interface {

	// Run drives the owner loop until Close is called or
	// the inbound channel ends. It owns the store, the
	// anti-entropy timer and all merge activity.
	Run() error

	// Update executes one transaction against the store and
	// broadcasts the committed delta. Either the whole batch
	// takes effect or none of it.
	Update(fn func(tx *crdt.Transaction)) error

	// View executes a read against the store. The callback
	// must neither mutate nor retain the store.
	View(fn func(s *crdt.CausalDotStore)) error

	// SetIsolated detaches or reattaches the replica. While
	// isolated, nothing is sent and everything received is
	// dropped. Reattaching broadcasts the full local state.
	SetIsolated(isolated bool) error

	// Close shuts the owner loop down. The anti-entropy
	// timer is cancelled with no pending side effects.
	Close()
}

// Structs

// Metrics bundles the counters the owner loop feeds.
type Metrics struct {
	DeltasSent        metrics.Counter
	DeltasReceived    metrics.Counter
	DeltasApplied     metrics.Counter
	AntiEntropyRounds metrics.Counter
	CorrectiveDeltas  metrics.Counter
	MalformedMsgs     metrics.Counter
}

// DiscardMetrics returns a metrics bundle that counts
// into the void, for tests and metrics-disabled runs.
func DiscardMetrics() *Metrics {

	return &Metrics{
		DeltasSent:        discard.NewCounter(),
		DeltasReceived:    discard.NewCounter(),
		DeltasApplied:     discard.NewCounter(),
		AntiEntropyRounds: discard.NewCounter(),
		CorrectiveDeltas:  discard.NewCounter(),
		MalformedMsgs:     discard.NewCounter(),
	}
}

type service struct {
	logger   log.Logger
	metrics  *Metrics
	replica  uint8
	store    *crdt.CausalDotStore
	sender   Broadcaster
	inbound  <-chan []byte
	interval time.Duration
	requests chan func()
	shutdown chan struct{}
	done     chan struct{}
	isolated bool
}

// Functions

// InitService initializes the replication service for the
// supplied replica id on top of a sender and an inbound
// datagram channel. The store starts empty; state is never
// persisted across restarts, peers rebuild us via
// anti-entropy.
func InitService(logger log.Logger, metrics *Metrics, replica uint8, sender Broadcaster, inbound <-chan []byte, interval time.Duration) Service {

	if interval <= 0 {
		interval = DefaultAntiEntropyInterval
	}

	if metrics == nil {
		metrics = DiscardMetrics()
	}

	return &service{
		logger:   logger,
		metrics:  metrics,
		replica:  replica,
		store:    crdt.NewStore(),
		sender:   sender,
		inbound:  inbound,
		interval: interval,
		requests: make(chan func()),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run drives the owner loop.
func (s *service) Run() error {

	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	level.Info(s.logger).Log(
		"msg", "replication service running",
		"replica", s.replica,
		"anti_entropy_interval", s.interval,
	)

	for {

		select {

		case fn := <-s.requests:
			fn()

		case data, ok := <-s.inbound:
			if !ok {
				level.Info(s.logger).Log("msg", "inbound channel ended, replication service stopping")
				return nil
			}
			s.handleDatagram(data)

		case <-ticker.C:
			s.broadcastContext()

		case <-s.shutdown:
			level.Info(s.logger).Log("msg", "replication service stopping")
			return nil
		}
	}
}

// Update executes one transaction on the owner loop.
func (s *service) Update(fn func(tx *crdt.Transaction)) error {

	return s.do(func() {

		tx := s.store.Begin(s.replica)
		fn(tx)

		delta := tx.Commit()
		if delta == nil {
			return
		}

		s.broadcastDelta(delta)
	})
}

// View executes a read on the owner loop.
func (s *service) View(fn func(st *crdt.CausalDotStore)) error {

	return s.do(func() {
		fn(s.store)
	})
}

// SetIsolated toggles the partition simulation.
func (s *service) SetIsolated(isolated bool) error {

	return s.do(func() {

		was := s.isolated
		s.isolated = isolated

		if was && !isolated {

			// Just reconnected: peers may have missed any
			// number of deltas, broadcast the full state once
			// and let anti-entropy level out the rest.
			level.Info(s.logger).Log("msg", "reattached to network, broadcasting full state")
			s.broadcastDelta(s.store.Diff(crdt.NewContext()))
		}

		if !was && isolated {
			level.Info(s.logger).Log("msg", "detached from network")
		}
	})
}

// Close shuts the owner loop down and waits for it.
func (s *service) Close() {

	close(s.shutdown)
	<-s.done
}

// do runs the supplied closure on the owner loop and
// waits for it to finish.
func (s *service) do(fn func()) error {

	executed := make(chan struct{})

	select {
	case s.requests <- func() {
		fn()
		close(executed)
	}:
	case <-s.done:
		return ErrClosed
	}

	select {
	case <-executed:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// handleDatagram parses and applies one received
// datagram. Malformed input is dropped with zero effect on
// local state; duplicates are harmless because the join is
// idempotent.
func (s *service) handleDatagram(data []byte) {

	m, err := comm.Parse(data)
	if err != nil {
		s.metrics.MalformedMsgs.Add(1)
		level.Warn(s.logger).Log(
			"msg", "dropping malformed sync message",
			"err", err,
		)
		return
	}

	// Received counts every well-formed delta datagram,
	// applied only the ones that change local state.
	if m.Kind == comm.KindDelta {
		s.metrics.DeltasReceived.Add(1)
	}

	// Our own broadcasts loop back on the shared port.
	if m.Sender == s.replica {
		return
	}

	if s.isolated {
		return
	}

	switch m.Kind {

	case comm.KindDelta:
		s.store.Merge(m.Delta)
		s.metrics.DeltasApplied.Add(1)
		level.Debug(s.logger).Log(
			"msg", "applied delta",
			"sender", m.Sender,
		)

	case comm.KindAntiEntropy:
		s.reconcile(m.Sender, m.Context)
	}
}

// reconcile compares a peer's bare context against the
// local store and sends at most one corrective delta
// covering exactly the dots the peer has not observed.
// The protocol is symmetric: if the peer is ahead of us
// instead, its own comparison of our periodic context
// broadcast makes it send the opposite delta, no explicit
// pull request exists.
func (s *service) reconcile(sender uint8, peer *crdt.CausalContext) {

	missing := s.store.Context.Subtract(peer)
	if len(missing) == 0 {
		level.Debug(s.logger).Log(
			"msg", "peer is up to date",
			"peer", sender,
		)
		return
	}

	delta := s.store.Diff(peer)

	level.Info(s.logger).Log(
		"msg", "peer lags behind, sending corrective delta",
		"peer", sender,
		"missing_dots", len(missing),
	)

	s.broadcastDelta(delta)
	s.metrics.CorrectiveDeltas.Add(1)
}

// broadcastContext performs one anti-entropy round: the
// bare local context, no payload. This periodic exchange
// is the sole loss-recovery mechanism and bounds the time
// to convergence after any dropped delta.
func (s *service) broadcastContext() {

	if s.isolated {
		return
	}

	s.metrics.AntiEntropyRounds.Add(1)

	if err := s.sender.Broadcast(comm.NewAntiEntropyMsg(s.replica, s.store.Context)); err != nil {
		level.Warn(s.logger).Log(
			"msg", "anti-entropy broadcast failed",
			"err", err,
		)
	}
}

// broadcastDelta sends one delta, unless isolated.
func (s *service) broadcastDelta(delta *crdt.Delta) {

	if s.isolated || delta == nil || delta.IsEmpty() {
		return
	}

	if err := s.sender.Broadcast(comm.NewDeltaMsg(s.replica, delta)); err != nil {
		level.Warn(s.logger).Log(
			"msg", "delta broadcast failed",
			"err", err,
		)
		return
	}

	s.metrics.DeltasSent.Add(1)
}
