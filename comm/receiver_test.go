package comm

import (
	"net"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
)

// Functions

// TestReceiverCloseWithoutDrainer verifies that Close
// returns even when nobody drains the datagram channel and
// more datagrams arrived than the channel buffers. The
// read loop must never block on a full channel, otherwise
// closing the connection cannot end it.
func TestReceiverCloseWithoutDrainer(t *testing.T) {

	conn, err := InitSocket(0)
	if err != nil {
		t.Fatalf("[comm.TestReceiverCloseWithoutDrainer] Expected socket bring-up to succeed but received: '%s'\n", err.Error())
	}

	recv, _ := InitReceiver(log.NewNopLogger(), conn)

	// Flood the receiver well past its channel capacity,
	// with nobody reading off the channel.
	port := conn.LocalAddr().(*net.UDPAddr).Port
	out, err := net.DialUDP("udp4", nil, &net.UDPAddr{
		IP:   net.IPv4(127, 0, 0, 1),
		Port: port,
	})
	if err != nil {
		t.Fatalf("[comm.TestReceiverCloseWithoutDrainer] Expected dial to succeed but received: '%s'\n", err.Error())
	}
	defer out.Close()

	for i := 0; i < 100; i++ {

		if _, err := out.Write([]byte("datagram")); err != nil {
			t.Fatalf("[comm.TestReceiverCloseWithoutDrainer] Expected send to succeed but received: '%s'\n", err.Error())
		}
	}

	// Give the read loop time to pull the flood off the
	// socket and fill its channel.
	time.Sleep(200 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		recv.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("[comm.TestReceiverCloseWithoutDrainer] Expected Close to return with a full undrained channel, but it hung.")
	}
}
