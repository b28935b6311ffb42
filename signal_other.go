//go:build !linux

package worksteal

import (
	"sync"
	"time"
)

// hostSignal is a single-slot channel, used as a level-triggered wakeup.
type hostSignal struct {
	ch     chan struct{}
	once   sync.Once
	closed chan struct{}
}

func newHostSignal() (*hostSignal, error) {
	return &hostSignal{
		ch:     make(chan struct{}, 1),
		closed: make(chan struct{}),
	}, nil
}

func (s *hostSignal) wait(timeout time.Duration) error {
	if timeout < 0 {
		select {
		case <-s.ch:
			return nil
		case <-s.closed:
			return ErrClosed
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.ch:
	case <-timer.C:
	case <-s.closed:
		return ErrClosed
	}
	return nil
}

func (s *hostSignal) notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *hostSignal) close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
