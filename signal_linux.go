//go:build linux

package worksteal

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// hostSignal is an eventfd, used as a level-triggered wakeup.
type hostSignal struct {
	mu     sync.RWMutex
	fd     int
	closed bool
}

func newHostSignal() (*hostSignal, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("worksteal: eventfd: %w", err)
	}
	return &hostSignal{fd: fd}, nil
}

// wait blocks until notified, or the timeout elapses, consuming any pending
// notification. A negative timeout blocks indefinitely.
func (s *hostSignal) wait(timeout time.Duration) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	ms := -1
	if timeout >= 0 {
		// round up, so short timeouts do not busy loop
		ms = int((timeout + time.Millisecond - 1) / time.Millisecond)
	}
	fds := [1]unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("worksteal: poll: %w", err)
	}
	if n > 0 {
		var buf [8]byte
		// EAGAIN means another reader drained it, which is fine
		_, _ = unix.Read(s.fd, buf[:])
	}
	return nil
}

func (s *hostSignal) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	// EAGAIN means the counter is saturated, and a wakeup is pending anyway
	_, _ = unix.Write(s.fd, buf[:])
}

func (s *hostSignal) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return unix.Close(s.fd)
}
