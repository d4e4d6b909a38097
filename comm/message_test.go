package comm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/numbleroot/dotlist/crdt"
)

// Functions

// buildDelta returns a small delta carrying one item for
// roundtrip tests.
func buildDelta(t *testing.T) *crdt.Delta {

	s := crdt.NewStore()
	pre := s.Context.Clone()

	d := s.NextDot(1)
	item := s.Root.Map.Create(d.String(), crdt.KindMap, d)
	field := item.Map.GetOrCreate("text", crdt.KindReg, s.Context, 1)
	field.Reg.Write(s.Context, 1, crdt.String("Buy milk"))

	delta := s.Diff(pre)
	if delta == nil || delta.IsEmpty() {
		t.Fatalf("[comm.buildDelta] Expected non-empty delta fixture.")
	}

	return delta
}

// TestMessageDeltaRoundtrip verifies that a delta message
// survives the wire encoding structurally intact.
func TestMessageDeltaRoundtrip(t *testing.T) {

	delta := buildDelta(t)

	data, err := NewDeltaMsg(42, delta).Marshal()
	assert.NoError(t, err)

	parsed, err := Parse(data)
	assert.NoError(t, err)

	assert.Equal(t, WireVersion, parsed.Version)
	assert.Equal(t, KindDelta, parsed.Kind)
	assert.Equal(t, uint8(42), parsed.Sender)
	assert.True(t, delta.Equal(parsed.Delta), "delta must survive the roundtrip structurally")
}

// TestMessageAntiEntropyRoundtrip verifies the bare
// context message, including exception dots beyond the
// frontier.
func TestMessageAntiEntropyRoundtrip(t *testing.T) {

	cc := crdt.NewContext()
	cc.Insert(crdt.Dot{Replica: 1, Counter: 1})
	cc.Insert(crdt.Dot{Replica: 1, Counter: 2})
	cc.Insert(crdt.Dot{Replica: 5, Counter: 9})

	data, err := NewAntiEntropyMsg(7, cc).Marshal()
	assert.NoError(t, err)

	parsed, err := Parse(data)
	assert.NoError(t, err)

	assert.Equal(t, KindAntiEntropy, parsed.Kind)
	assert.True(t, cc.Equal(parsed.Context), "context must survive the roundtrip, exceptions included")
}

// TestParseRejectsJunk verifies that undecodable and
// ill-formed input is rejected instead of propagated.
func TestParseRejectsJunk(t *testing.T) {

	for name, data := range map[string][]byte{
		"empty":     {},
		"garbage":   []byte("definitely not msgpack \x00\xff"),
		"truncated": {0x81},
	} {
		_, err := Parse(data)
		assert.Errorf(t, err, "input %s must be rejected", name)
	}

	// Structurally valid msgpack without a version tag.
	data, err := msgpack.Marshal(map[string]interface{}{"k": 1})
	assert.NoError(t, err)

	_, err = Parse(data)
	assert.Error(t, err, "message without version tag must be rejected")

	// Known version, unknown kind.
	data, err = msgpack.Marshal(&Message{Version: WireVersion, Kind: 99, Sender: 1})
	assert.NoError(t, err)

	_, err = Parse(data)
	assert.Error(t, err, "unknown message kind must be rejected")
}

// TestParseToleratesUnknownFields verifies forward
// compatibility: a message from a newer replica carrying
// extra fields still parses.
func TestParseToleratesUnknownFields(t *testing.T) {

	future := struct {
		Version uint8               `msgpack:"v"`
		Kind    Kind                `msgpack:"k"`
		Sender  uint8               `msgpack:"s"`
		Context *crdt.CausalContext `msgpack:"c"`
		Shiny   string              `msgpack:"shiny"`
		Extra   int                 `msgpack:"x"`
	}{
		Version: 2,
		Kind:    KindAntiEntropy,
		Sender:  3,
		Context: crdt.NewContext(),
		Shiny:   "from the future",
		Extra:   7,
	}

	data, err := msgpack.Marshal(&future)
	assert.NoError(t, err)

	parsed, err := Parse(data)
	assert.NoError(t, err, "unknown fields must be skipped, not fatal")
	assert.Equal(t, uint8(3), parsed.Sender)
	assert.Equal(t, KindAntiEntropy, parsed.Kind)
}
