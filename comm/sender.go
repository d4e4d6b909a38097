package comm

import (
	"net"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
)

// Structs

// Sender broadcasts marshalled sync messages onto the
// shared UDP domain. Sending is fire-and-forget: there is
// no acknowledgement, no retry, and a failed send is only
// a log line, because anti-entropy repairs whatever the
// wire drops.
type Sender struct {
	logger log.Logger
	conn   *net.UDPConn
	target *net.UDPAddr
}

// Functions

// InitSender initializes a sender broadcasting through
// the supplied connection to the supplied broadcast
// address and port.
func InitSender(logger log.Logger, conn *net.UDPConn, broadcastAddr string, port int) (*Sender, error) {

	ip := net.ParseIP(broadcastAddr)
	if ip == nil {
		return nil, errors.Errorf("invalid broadcast address '%s'", broadcastAddr)
	}

	return &Sender{
		logger: logger,
		conn:   conn,
		target: &net.UDPAddr{
			IP:   ip,
			Port: port,
		},
	}, nil
}

// Broadcast marshals the supplied message and sends it as
// one datagram to all replicas on the domain, the local
// one included.
func (snd *Sender) Broadcast(m *Message) error {

	data, err := m.Marshal()
	if err != nil {
		return err
	}

	n, err := snd.conn.WriteToUDP(data, snd.target)
	if err != nil {
		return errors.Wrap(err, "broadcasting sync message failed")
	}

	level.Debug(snd.logger).Log(
		"msg", "broadcast sync message",
		"kind", m.Kind,
		"bytes", n,
	)

	return nil
}
