package comm

import (
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/numbleroot/dotlist/crdt"
)

// Constants

// WireVersion is the encoding version stamped into every
// outgoing message.
const WireVersion uint8 = 1

// Message kinds carried on the broadcast domain.
const (
	// KindDelta propagates a minimal change: a delta's
	// context subset plus payload.
	KindDelta Kind = 1

	// KindAntiEntropy carries a replica's bare causal
	// context and triggers symmetric gap detection.
	KindAntiEntropy Kind = 2
)

// Structs

// Kind tags the purpose of a sync message.
type Kind uint8

// Message is the one envelope dotlist puts on the wire.
// The msgpack encoding is compact and self-describing:
// decoders skip unknown fields, so differently-versioned
// replicas on the same broadcast domain degrade gracefully
// instead of tearing the session down.
type Message struct {
	Version uint8               `msgpack:"v"`
	Kind    Kind                `msgpack:"k"`
	Sender  uint8               `msgpack:"s"`
	Delta   *crdt.Delta         `msgpack:"d,omitempty"`
	Context *crdt.CausalContext `msgpack:"c,omitempty"`
}

// Functions

// NewDeltaMsg wraps a delta for broadcast.
func NewDeltaMsg(sender uint8, delta *crdt.Delta) *Message {

	return &Message{
		Version: WireVersion,
		Kind:    KindDelta,
		Sender:  sender,
		Delta:   delta,
	}
}

// NewAntiEntropyMsg wraps a bare causal context for the
// periodic anti-entropy broadcast.
func NewAntiEntropyMsg(sender uint8, cc *crdt.CausalContext) *Message {

	return &Message{
		Version: WireVersion,
		Kind:    KindAntiEntropy,
		Sender:  sender,
		Context: cc,
	}
}

// Marshal serializes the message for the wire.
func (m *Message) Marshal() ([]byte, error) {

	data, err := msgpack.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling sync message failed")
	}

	return data, nil
}

// Parse deserializes and validates one received datagram.
// Anything that does not decode into a well-formed message
// is rejected with an error; the caller drops it with zero
// effect on local state.
func Parse(data []byte) (*Message, error) {

	m := &Message{}

	if err := msgpack.Unmarshal(data, m); err != nil {
		return nil, errors.Wrap(err, "unmarshalling sync message failed")
	}

	if m.Version == 0 {
		return nil, errors.New("sync message carries no version tag")
	}

	switch m.Kind {

	case KindDelta:
		if m.Delta == nil {
			return nil, errors.New("delta message carries no delta")
		}

	case KindAntiEntropy:
		if m.Context == nil {
			return nil, errors.New("anti-entropy message carries no context")
		}

	default:
		return nil, errors.Errorf("unknown sync message kind %d", m.Kind)
	}

	return m, nil
}
