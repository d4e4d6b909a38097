package comm

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Functions

// InitSocket opens the UDP socket every replica binds for
// sending and receiving broadcast datagrams. SO_REUSEADDR
// and SO_REUSEPORT allow multiple replicas to share one
// port on one host, each receiving its own copy of every
// broadcast, and SO_BROADCAST permits sending to the
// broadcast address in the first place.
func InitSocket(port int) (*net.UDPConn, error) {

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {

			var sockErr error

			err := c.Control(func(fd uintptr) {

				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if sockErr != nil {
					return
				}

				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
				if sockErr != nil {
					return
				}

				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			})
			if err != nil {
				return err
			}

			return sockErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, errors.Wrapf(err, "binding broadcast socket on port %d failed", port)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		pc.Close()
		return nil, errors.New("packet listener is not a UDP connection")
	}

	return conn, nil
}
