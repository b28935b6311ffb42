package worksteal

import (
	"sync/atomic"
	"time"
)

// parker states
const (
	parkEmpty uint32 = iota
	parkParked
	parkNotified
)

// Parker puts an idle core to sleep until it is unparked, or closed. A
// notification delivered while the owner is awake is remembered, and consumed
// by the next park, so wakeups are never lost.
type Parker struct { // betteralign:ignore
	_      [sizeOfCacheLine]byte
	state  atomic.Uint32
	closed atomic.Bool
	_      [sizeOfCacheLine]byte

	signal *hostSignal

	parks   atomic.Uint64
	unparks atomic.Uint64

	// testHooks is nil outside of tests
	testHooks *parkerTestHooks
}

type parkerTestHooks struct {
	// BeforeBlock runs after the parked state is published, and the recheck
	// found no work, immediately before blocking.
	BeforeBlock func()
}

// UnparkToken wakes the [Parker] it was created from. It is safe to copy,
// and to use from any goroutine, including asynchronous callbacks that model
// interrupts.
type UnparkToken struct {
	p *Parker
}

// NewParker returns a parker backed by the platform's host signal.
func NewParker() (*Parker, error) {
	signal, err := newHostSignal()
	if err != nil {
		return nil, err
	}
	return &Parker{signal: signal}, nil
}

// Park blocks until unparked. It returns [ErrClosed] once closed.
func (p *Parker) Park() error { return p.park(-1, nil) }

// ParkTimeout is Park, returning [ErrTimeout] if d elapses first.
func (p *Parker) ParkTimeout(d time.Duration) error { return p.park(d, nil) }

// park implements Park. A negative timeout blocks indefinitely. If recheck
// is provided, it runs after the parked state is published, and aborts the
// park if it returns true.
func (p *Parker) park(timeout time.Duration, recheck func() bool) error {
	if p.state.CompareAndSwap(parkNotified, parkEmpty) {
		return nil
	}
	if p.closed.Load() {
		return ErrClosed
	}
	if !p.state.CompareAndSwap(parkEmpty, parkParked) {
		// notified in the meantime, consume it
		p.state.Store(parkEmpty)
		return nil
	}

	// any waker that missed PARKED must have published its work first
	if recheck != nil && recheck() {
		p.state.CompareAndSwap(parkParked, parkEmpty)
		return nil
	}

	p.parks.Add(1)
	if p.testHooks != nil && p.testHooks.BeforeBlock != nil {
		p.testHooks.BeforeBlock()
	}

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		remaining := time.Duration(-1)
		if timeout >= 0 {
			if remaining = time.Until(deadline); remaining < 0 {
				remaining = 0
			}
		}
		if err := p.signal.wait(remaining); err != nil {
			p.state.CompareAndSwap(parkParked, parkEmpty)
			return err
		}
		if p.closed.Load() {
			p.state.Store(parkEmpty)
			return ErrClosed
		}
		if p.state.Load() != parkParked {
			return nil
		}
		if timeout >= 0 && !time.Now().Before(deadline) {
			if p.state.CompareAndSwap(parkParked, parkEmpty) {
				return ErrTimeout
			}
			return nil
		}
		// spurious wakeup
	}
}

// Unpark wakes the owner, or notifies its next park.
func (p *Parker) Unpark() { _ = p.TryUnpark() }

// TryUnpark is Unpark, reporting a redundant unpark via [UnparkError].
func (p *Parker) TryUnpark() error {
	for {
		switch p.state.Load() {
		case parkParked:
			if p.state.CompareAndSwap(parkParked, parkEmpty) {
				p.unparks.Add(1)
				p.signal.notify()
				return nil
			}
		case parkEmpty:
			if p.state.CompareAndSwap(parkEmpty, parkNotified) {
				return NotParked
			}
		default:
			return AlreadyUnparked
		}
	}
}

// IsParked reports whether the owner is currently blocked, or about to be.
func (p *Parker) IsParked() bool { return p.state.Load() == parkParked }

// Token returns an [UnparkToken] for the parker.
func (p *Parker) Token() UnparkToken { return UnparkToken{p: p} }

// Waker adapts the parker to the [Waker] interface.
func (p *Parker) Waker() Waker { return WakerFunc(p.Unpark) }

// Close wakes the owner, causes all further parks to fail with [ErrClosed],
// and frees the host signal. It is safe to call more than once.
func (p *Parker) Close() error {
	if !p.closed.Swap(true) {
		p.signal.notify()
	}
	// waits for a parked owner to observe the notification
	return p.signal.close()
}

// TryUnpark wakes the parker. See [Parker.TryUnpark].
func (t UnparkToken) TryUnpark() error { return t.p.TryUnpark() }

// Unpark wakes the parker, ignoring redundant unparks.
func (t UnparkToken) Unpark() { t.p.Unpark() }

// Wake implements [Waker].
func (t UnparkToken) Wake() { t.p.Unpark() }
