package comm

import (
	"net"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Constants

// maxDatagramSize bounds one received sync message. UDP
// cannot deliver more than 64 KiB anyway.
const maxDatagramSize = 65536

// Structs

// Receiver reads raw datagrams off the shared socket in a
// background routine and hands them to the owner loop via
// a channel. It performs no parsing and no filtering, the
// owner loop decides what a datagram means.
type Receiver struct {
	logger log.Logger
	conn   *net.UDPConn
	out    chan []byte
	wg     sync.WaitGroup
}

// Functions

// InitReceiver initializes a receiver on the supplied
// connection and starts its background read routine. It
// returns the channel raw datagrams arrive on; the channel
// is closed once the connection is closed.
func InitReceiver(logger log.Logger, conn *net.UDPConn) (*Receiver, <-chan []byte) {

	recv := &Receiver{
		logger: logger,
		conn:   conn,
		out:    make(chan []byte, 64),
	}

	recv.wg.Add(1)
	go recv.readLoop()

	return recv, recv.out
}

// readLoop blocks on the socket and forwards every
// datagram. A read error means the socket was closed
// during shutdown, which ends the routine.
func (recv *Receiver) readLoop() {

	defer recv.wg.Done()
	defer close(recv.out)

	buf := make([]byte, maxDatagramSize)

	for {

		n, addr, err := recv.conn.ReadFromUDP(buf)
		if err != nil {
			level.Debug(recv.logger).Log(
				"msg", "receiver read loop ending",
				"err", err,
			)
			return
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		level.Debug(recv.logger).Log(
			"msg", "received datagram",
			"bytes", n,
			"from", addr.String(),
		)

		// A full channel means the owner loop stopped
		// draining. Blocking here would keep Close from
		// returning, so the datagram is dropped instead;
		// anti-entropy repairs the loss like any other one.
		select {
		case recv.out <- data:
		default:
			level.Debug(recv.logger).Log("msg", "dropping datagram, channel full")
		}
	}
}

// Close stops the read routine by closing the underlying
// connection and waits for it to end.
func (recv *Receiver) Close() {

	recv.conn.Close()
	recv.wg.Wait()
}
