package node

import (
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics/generic"
	"github.com/stretchr/testify/assert"

	"github.com/numbleroot/dotlist/comm"
	"github.com/numbleroot/dotlist/crdt"
)

// Structs

// captureSender records every broadcast message instead of
// touching the network.
type captureSender struct {
	mu   sync.Mutex
	msgs []*comm.Message
}

// Functions

func (c *captureSender) Broadcast(m *comm.Message) error {

	c.mu.Lock()
	defer c.mu.Unlock()

	c.msgs = append(c.msgs, m)

	return nil
}

func (c *captureSender) snapshot() []*comm.Message {

	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*comm.Message(nil), c.msgs...)
}

// newTestService spins up a running service for the
// supplied replica with a capture sender and an unbuffered
// inbound channel. The unbuffered channel makes delivery
// deterministic in tests: a send returns once the owner
// loop has picked the datagram up, and the loop is done
// with it by the time any later request runs.
func newTestService(t *testing.T, replica uint8) (Service, *captureSender, chan []byte) {

	sender := &captureSender{}
	inbound := make(chan []byte)

	svc := InitService(log.NewNopLogger(), DiscardMetrics(), replica, sender, inbound, time.Hour)

	go func() {

		if err := svc.Run(); err != nil {
			t.Errorf("[node.newTestService] Run failed: %v", err)
		}
	}()

	t.Cleanup(svc.Close)

	return svc, sender, inbound
}

// addEntry commits one nested item map with a text register
// via the service and returns the minted key.
func addEntry(t *testing.T, svc Service, text string) string {

	var key string

	err := svc.Update(func(tx *crdt.Transaction) {

		tx.Do(func(st *crdt.CausalDotStore, r uint8) {

			d := st.NextDot(r)
			key = d.String()

			item := st.Root.Map.Create(key, crdt.KindMap, d)
			field := item.Map.GetOrCreate("text", crdt.KindReg, st.Context, r)
			field.Reg.Write(st.Context, r, crdt.String(text))
		})
	})
	if err != nil {
		t.Fatalf("[node.addEntry] Update failed: %v", err)
	}

	return key
}

// remoteDelta builds a committed delta on a detached store
// acting as the supplied peer replica and returns the key
// plus the marshalled delta message.
func remoteDelta(t *testing.T, replica uint8, text string) (string, []byte) {

	peer := crdt.NewStore()

	var key string

	tx := peer.Begin(replica)
	tx.Do(func(st *crdt.CausalDotStore, r uint8) {

		d := st.NextDot(r)
		key = d.String()

		item := st.Root.Map.Create(key, crdt.KindMap, d)
		field := item.Map.GetOrCreate("text", crdt.KindReg, st.Context, r)
		field.Reg.Write(st.Context, r, crdt.String(text))
	})

	data, err := comm.NewDeltaMsg(replica, tx.Commit()).Marshal()
	if err != nil {
		t.Fatalf("[node.remoteDelta] Marshal failed: %v", err)
	}

	return key, data
}

// hasKey reads whether the service's store holds the
// supplied root key.
func hasKey(t *testing.T, svc Service, key string) bool {

	var found bool

	if err := svc.View(func(st *crdt.CausalDotStore) {
		found = st.Root.Map.Get(key) != nil
	}); err != nil {
		t.Fatalf("[node.hasKey] View failed: %v", err)
	}

	return found
}

// TestServiceUpdateBroadcastsDelta verifies that a
// committed local transaction is visible in reads and goes
// out as exactly one delta message.
func TestServiceUpdateBroadcastsDelta(t *testing.T) {

	svc, sender, _ := newTestService(t, 1)

	key := addEntry(t, svc, "pick up keys")

	assert.True(t, hasKey(t, svc, key), "committed entry must be readable")

	msgs := sender.snapshot()
	if len(msgs) != 1 {
		t.Fatalf("[node.TestServiceUpdateBroadcastsDelta] expected 1 broadcast, got %d", len(msgs))
	}

	assert.Equal(t, comm.KindDelta, msgs[0].Kind)
	assert.Equal(t, uint8(1), msgs[0].Sender)
	assert.NotNil(t, msgs[0].Delta.Root.Map.Get(key), "delta must carry the new entry")
}

// TestServiceEmptyUpdateSendsNothing verifies that a
// transaction without operations produces no broadcast.
func TestServiceEmptyUpdateSendsNothing(t *testing.T) {

	svc, sender, _ := newTestService(t, 1)

	if err := svc.Update(func(tx *crdt.Transaction) {}); err != nil {
		t.Fatalf("[node.TestServiceEmptyUpdateSendsNothing] Update failed: %v", err)
	}

	assert.Empty(t, sender.snapshot(), "empty commit must not broadcast")
}

// TestServiceAppliesInboundDelta verifies that a delta
// datagram from a peer is merged into local state.
func TestServiceAppliesInboundDelta(t *testing.T) {

	svc, _, inbound := newTestService(t, 1)

	key, data := remoteDelta(t, 2, "water plants")
	inbound <- data

	assert.True(t, hasKey(t, svc, key), "peer delta must be applied")
}

// TestServiceIgnoresOwnSender verifies that a looped-back
// broadcast carrying our own replica id is dropped.
func TestServiceIgnoresOwnSender(t *testing.T) {

	svc, _, inbound := newTestService(t, 1)

	ownKey, ownData := remoteDelta(t, 1, "echo")
	foreignKey, foreignData := remoteDelta(t, 2, "real")

	inbound <- ownData
	inbound <- foreignData

	assert.True(t, hasKey(t, svc, foreignKey), "foreign delta must be applied")
	assert.False(t, hasKey(t, svc, ownKey), "own loopback must be dropped")
}

// TestServiceMalformedInboundDropped verifies that junk
// datagrams leave local state untouched and the loop
// alive.
func TestServiceMalformedInboundDropped(t *testing.T) {

	svc, _, inbound := newTestService(t, 1)

	key := addEntry(t, svc, "survivor")

	inbound <- []byte{}
	inbound <- []byte("not msgpack at all")

	assert.True(t, hasKey(t, svc, key), "state must survive malformed input")
}

// TestServiceAntiEntropySendsCorrectiveDelta verifies the
// pull-free reconciliation step: a peer context lacking
// our dots triggers exactly one corrective delta, while an
// up-to-date peer context triggers nothing.
func TestServiceAntiEntropySendsCorrectiveDelta(t *testing.T) {

	svc, sender, inbound := newTestService(t, 1)

	key := addEntry(t, svc, "shared fact")

	// Peer 2 announces an empty context: it lags.
	behind, err := comm.NewAntiEntropyMsg(2, crdt.NewContext()).Marshal()
	if err != nil {
		t.Fatal(err)
	}
	inbound <- behind

	// Drain the loop before inspecting the sender.
	hasKey(t, svc, key)

	msgs := sender.snapshot()
	if len(msgs) != 2 {
		t.Fatalf("[node.TestServiceAntiEntropySendsCorrectiveDelta] expected 2 broadcasts, got %d", len(msgs))
	}

	corrective := msgs[1]
	assert.Equal(t, comm.KindDelta, corrective.Kind)
	assert.NotNil(t, corrective.Delta.Root.Map.Get(key), "corrective delta must cover the missed entry")

	// Peer 3 announces the exact context the corrective
	// delta carries: it is caught up, nothing to send.
	caughtUp, err := comm.NewAntiEntropyMsg(3, corrective.Delta.Context).Marshal()
	if err != nil {
		t.Fatal(err)
	}
	inbound <- caughtUp

	hasKey(t, svc, key)

	assert.Len(t, sender.snapshot(), 2, "up-to-date peer must trigger no broadcast")
}

// TestServiceIsolation verifies the partition toggle:
// while isolated nothing inbound is applied and nothing is
// sent, and reattaching broadcasts the full local state
// once.
func TestServiceIsolation(t *testing.T) {

	svc, sender, inbound := newTestService(t, 1)

	localKey := addEntry(t, svc, "before partition")

	if err := svc.SetIsolated(true); err != nil {
		t.Fatalf("[node.TestServiceIsolation] SetIsolated failed: %v", err)
	}

	// A peer delta arrives during the partition and must be
	// dropped, not deferred.
	droppedKey, droppedData := remoteDelta(t, 2, "lost to partition")
	inbound <- droppedData

	assert.False(t, hasKey(t, svc, droppedKey), "inbound delta must be dropped while isolated")

	// Local edits during the partition commit but stay home.
	partitionKey := addEntry(t, svc, "during partition")
	assert.Len(t, sender.snapshot(), 1, "no broadcast may leave while isolated")

	if err := svc.SetIsolated(false); err != nil {
		t.Fatalf("[node.TestServiceIsolation] SetIsolated failed: %v", err)
	}

	msgs := sender.snapshot()
	if len(msgs) != 2 {
		t.Fatalf("[node.TestServiceIsolation] expected full-state broadcast on reattach, got %d messages", len(msgs))
	}

	full := msgs[1]
	assert.Equal(t, comm.KindDelta, full.Kind)
	assert.NotNil(t, full.Delta.Root.Map.Get(localKey), "full-state broadcast must carry pre-partition state")
	assert.NotNil(t, full.Delta.Root.Map.Get(partitionKey), "full-state broadcast must carry partition-era edits")
}

// TestServiceCountsReceivedAndAppliedDeltas verifies the
// counter split: received covers every well-formed delta
// datagram, own loopbacks included, while applied covers
// only the ones merged into local state.
func TestServiceCountsReceivedAndAppliedDeltas(t *testing.T) {

	received := generic.NewCounter("deltas_received")
	applied := generic.NewCounter("deltas_applied")

	m := DiscardMetrics()
	m.DeltasReceived = received
	m.DeltasApplied = applied

	sender := &captureSender{}
	inbound := make(chan []byte)

	svc := InitService(log.NewNopLogger(), m, 1, sender, inbound, time.Hour)

	go func() { _ = svc.Run() }()
	t.Cleanup(svc.Close)

	_, ownData := remoteDelta(t, 1, "loopback")
	foreignKey, foreignData := remoteDelta(t, 2, "peer edit")

	inbound <- ownData
	inbound <- foreignData

	// Anti-entropy datagrams must not count as deltas.
	announce, err := comm.NewAntiEntropyMsg(3, crdt.NewContext()).Marshal()
	if err != nil {
		t.Fatal(err)
	}
	inbound <- announce

	// Drain the loop before reading the counters.
	hasKey(t, svc, foreignKey)

	assert.Equal(t, float64(2), received.Value(), "both delta datagrams must count as received")
	assert.Equal(t, float64(1), applied.Value(), "only the foreign delta must count as applied")
}

// TestServiceClosedRejectsRequests verifies that requests
// after Close fail with ErrClosed instead of hanging.
func TestServiceClosedRejectsRequests(t *testing.T) {

	sender := &captureSender{}
	inbound := make(chan []byte)

	svc := InitService(log.NewNopLogger(), DiscardMetrics(), 1, sender, inbound, time.Hour)

	go func() { _ = svc.Run() }()

	svc.Close()

	err := svc.Update(func(tx *crdt.Transaction) {})

	assert.Equal(t, ErrClosed, err)
}
