// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package worksteal

import (
	"fmt"
	"maps"
	"runtime"
	"time"

	"fortio.org/safecast"
	"github.com/joeycumines/logiface"
)

// Defaults, see the corresponding options.
const (
	DefaultLocalQueueCapacity  = 256
	DefaultGlobalQueueInterval = 61
	DefaultTickBudget          = 64
	DefaultStealRounds         = 4
)

// runtimeOptions holds configuration options for Runtime creation.
type runtimeOptions struct {
	logger              *logiface.Logger[logiface.Event]
	panicLogRates       map[time.Duration]int
	cores               int
	queueCapacity       int
	tickBudget          int
	stealRounds         int
	maxTasks            int64
	globalQueueInterval uint32
	pinThreads          bool
}

// Option configures a Runtime instance.
type Option interface {
	applyRuntime(*runtimeOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyRuntimeFunc func(*runtimeOptions) error
}

func (o *optionImpl) applyRuntime(opts *runtimeOptions) error {
	return o.applyRuntimeFunc(opts)
}

// WithCores sets the number of cores (workers). Defaults to GOMAXPROCS.
func WithCores(n int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if n < 1 {
			return fmt.Errorf("worksteal: invalid cores: %d", n)
		}
		opts.cores = n
		return nil
	}}
}

// WithLocalQueueCapacity sets the capacity of each core's ring, which must
// be a power of two, at least 2.
func WithLocalQueueCapacity(n int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		v, err := safecast.Conv[uint32](n)
		if err != nil || v < 2 || v&(v-1) != 0 {
			return fmt.Errorf("worksteal: invalid local queue capacity: %d", n)
		}
		opts.queueCapacity = n
		return nil
	}}
}

// WithGlobalQueueInterval sets how often, in polls, each core checks the
// injector before its own queue. Zero disables the check, leaving the
// injector to idle cores only.
func WithGlobalQueueInterval(n int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		v, err := safecast.Conv[uint32](n)
		if err != nil {
			return fmt.Errorf("worksteal: invalid global queue interval: %w", err)
		}
		opts.globalQueueInterval = v
		return nil
	}}
}

// WithTickBudget sets the maximum number of polls per scheduler tick.
func WithTickBudget(n int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if n < 1 {
			return fmt.Errorf("worksteal: invalid tick budget: %d", n)
		}
		opts.tickBudget = n
		return nil
	}}
}

// WithStealRounds sets the number of rounds over random victims an idle
// core makes before parking.
func WithStealRounds(n int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if n < 0 || n > 16 {
			return fmt.Errorf("worksteal: invalid steal rounds: %d", n)
		}
		opts.stealRounds = n
		return nil
	}}
}

// WithMaxTasks limits the number of live task cells. Spawns beyond the limit
// fail with [ErrAllocation]. Zero means unlimited.
func WithMaxTasks(n int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		v, err := safecast.Conv[int64](n)
		if err != nil || v < 0 {
			return fmt.Errorf("worksteal: invalid max tasks: %d", n)
		}
		opts.maxTasks = v
		return nil
	}}
}

// WithPinThreads pins each worker's OS thread to a distinct CPU, where
// supported.
func WithPinThreads(enabled bool) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.pinThreads = enabled
		return nil
	}}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithPanicLogRates sets the rate limits for task panic logs, per core, in
// the format accepted by go-catrate. An empty map disables limiting.
func WithPanicLogRates(rates map[time.Duration]int) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		opts.panicLogRates = maps.Clone(rates)
		return nil
	}}
}

// resolveOptions applies Option instances to runtimeOptions.
func resolveOptions(opts []Option) (*runtimeOptions, error) {
	cfg := &runtimeOptions{
		cores:               runtime.GOMAXPROCS(0),
		queueCapacity:       DefaultLocalQueueCapacity,
		globalQueueInterval: DefaultGlobalQueueInterval,
		tickBudget:          DefaultTickBudget,
		stealRounds:         DefaultStealRounds,
		panicLogRates: map[time.Duration]int{
			time.Second: 5,
			time.Minute: 60,
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyRuntime(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
