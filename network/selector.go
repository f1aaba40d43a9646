package network

import (
	"golang.org/x/sys/unix"
)

// Selector probes a Socket for pending datagrams. A receive drain loop
// spins while IsReady reports true, so the loop ends once the OS buffer
// runs dry.
type Selector struct {
	socket *Socket
}

// NewSelector creates a Selector over the given Socket.
func NewSelector(socket *Socket) Selector {
	return Selector{socket: socket}
}

// IsReady polls the socket's file descriptor without blocking.
func (sel Selector) IsReady() bool {
	if sel.socket.conn == nil {
		return false
	}

	rawConn, err := sel.socket.conn.SyscallConn()
	if err != nil {
		return false
	}

	ready := false
	ctrlErr := rawConn.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, 0)
		ready = err == nil && n > 0 && fds[0].Revents&unix.POLLIN != 0
	})

	return ctrlErr == nil && ready
}
