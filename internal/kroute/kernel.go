package kroute

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/B4PzwL3YVGa6/newd/internal/log"
	"github.com/B4PzwL3YVGa6/newd/internal/proposal"
	"github.com/B4PzwL3YVGa6/newd/internal/rtwire"
)

// Routing-domain socket constants. These are part of the kernel
// interface contract, not exported by x/sys/unix for this domain.
const (
	afRoute        = 17
	soUseLoopback  = 0x0040
	routeMsgFilter = 1

	siocAIFAddr = 0x8040691a
	siocDIFAddr = 0x80206919

	maxRcvBufSize = 128 * 1024
)

// routeConn owns a read-only routing-domain descriptor.
type routeConn struct {
	fd int
}

func (c *routeConn) Read(p []byte) (int, error) { return unix.Read(c.fd, p) }
func (c *routeConn) Close() error               { return unix.Close(c.fd) }
func (c *routeConn) Fd() int                    { return c.fd }

// OpenRouteSocket opens the kernel notification channel for the
// monitor: loopback of our own writes disabled, incoming traffic
// filtered down to proposal messages, and the receive buffer grown as
// far as the kernel allows.
func OpenRouteSocket() (Conn, error) {
	fd, err := unix.Socket(afRoute, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.AF_UNSPEC)
	if err != nil {
		return nil, fmt.Errorf("kroute: route socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, soUseLoopback, 0); err != nil {
		// We keep seeing our own writes, which the decoder skips by
		// type anyway.
		log.Warnf("disable routing socket loopback: %v", err)
	}
	filter := 1 << rtwire.MsgProposal
	if err := unix.SetsockoptInt(fd, afRoute, routeMsgFilter, filter); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("kroute: message filter: %w", err)
	}

	def, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("kroute: query rcvbuf: %w", err)
	}
	got := negotiateRcvBuf(def, maxRcvBufSize, func(v int) error {
		return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, v)
	})
	log.Debugf("routing socket rcvbuf %d", got)

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("kroute: nonblock: %w", err)
	}
	return &routeConn{fd: fd}, nil
}

// negotiateRcvBuf asks for max and halves on resource exhaustion until
// the kernel accepts or the default is reached. It returns the size in
// effect afterwards; never getting above the default is not an error.
func negotiateRcvBuf(def, max int, set func(int) error) int {
	for v := max; v > def; v /= 2 {
		err := set(v)
		if err == nil {
			return v
		}
		if err != unix.ENOBUFS {
			break
		}
	}
	return def
}

// routeWriter owns a write-only routing-domain descriptor for the
// installer.
type routeWriter struct {
	fd int
}

func (w *routeWriter) Writev(iovs [][]byte) (int, error) {
	return unix.Writev(w.fd, iovs)
}

func (w *routeWriter) Close() error { return unix.Close(w.fd) }

// OpenRouteWriter opens the installer's routing channel. Incoming
// traffic is shut off entirely; this descriptor only ever writes.
func OpenRouteWriter() (RouteWriter, error) {
	fd, err := unix.Socket(afRoute, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.AF_UNSPEC)
	if err != nil {
		return nil, fmt.Errorf("kroute: route socket: %w", err)
	}
	if err := unix.Shutdown(fd, unix.SHUT_RD); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("kroute: shutdown read side: %w", err)
	}
	return &routeWriter{fd: fd}, nil
}

// devCtl issues address-management requests over per-family control
// descriptors.
type devCtl struct {
	fd4 int
	fd6 int
}

// OpenDevCtl opens the per-family control descriptors used for
// interface address requests.
func OpenDevCtl() (DevCtl, error) {
	fd4, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("kroute: inet control socket: %w", err)
	}
	fd6, err := unix.Socket(unix.AF_INET6, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		unix.Close(fd4)
		return nil, fmt.Errorf("kroute: inet6 control socket: %w", err)
	}
	return &devCtl{fd4: fd4, fd6: fd6}, nil
}

func (d *devCtl) pick(f proposal.Family) int {
	if f == proposal.IPv6 {
		return d.fd6
	}
	return d.fd4
}

func (d *devCtl) ioctl(fd int, req uint, blob []byte) error {
	if len(blob) != AliasRequestLen {
		return fmt.Errorf("kroute: alias request length %d", len(blob))
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(unsafe.Pointer(&blob[0])))
	if errno != 0 {
		return os.NewSyscallError("ioctl", errno)
	}
	return nil
}

func (d *devCtl) AddAddress(f proposal.Family, req []byte) error {
	return d.ioctl(d.pick(f), siocAIFAddr, req)
}

func (d *devCtl) DeleteAddress(f proposal.Family, req []byte) error {
	return d.ioctl(d.pick(f), siocDIFAddr, req)
}
