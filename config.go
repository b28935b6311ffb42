package worksteal

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is a TOML tuning file. Only keys present in the file are applied,
// leaving other settings at their defaults, or prior options.
//
//	[runtime]
//	cores = 4
//	local_queue_capacity = 256
//	global_queue_interval = 61
//	tick_budget = 64
//	steal_rounds = 4
//	max_tasks = 0
//	pin_threads = false
//
//	[logging.panic_rates]
//	"1s" = 5
//	"1m" = 60
type Config struct {
	Runtime RuntimeConfig `toml:"runtime"`
	Logging LoggingConfig `toml:"logging"`

	meta toml.MetaData
}

// RuntimeConfig is the [runtime] table.
type RuntimeConfig struct {
	Cores               int  `toml:"cores"`
	LocalQueueCapacity  int  `toml:"local_queue_capacity"`
	GlobalQueueInterval int  `toml:"global_queue_interval"`
	TickBudget          int  `toml:"tick_budget"`
	StealRounds         int  `toml:"steal_rounds"`
	MaxTasks            int  `toml:"max_tasks"`
	PinThreads          bool `toml:"pin_threads"`
}

// LoggingConfig is the [logging] table.
type LoggingConfig struct {
	// PanicRates maps durations, e.g. "1s", to event counts.
	PanicRates map[string]int `toml:"panic_rates"`
}

// DecodeConfig parses a TOML config from r.
func DecodeConfig(r io.Reader) (*Config, error) {
	var cfg Config
	meta, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("worksteal: failed to parse TOML: %w", err)
	}
	return finishConfig(&cfg, meta)
}

// LoadConfig parses the TOML config file at path.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	c, err := finishConfig(&cfg, meta)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func finishConfig(cfg *Config, meta toml.MetaData) (*Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) != 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("worksteal: unknown config keys: %s", strings.Join(keys, ", "))
	}
	cfg.meta = meta
	if _, err := cfg.panicRates(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) panicRates() (map[time.Duration]int, error) {
	if c.Logging.PanicRates == nil {
		return nil, nil
	}
	rates := make(map[time.Duration]int, len(c.Logging.PanicRates))
	for k, v := range c.Logging.PanicRates {
		d, err := time.ParseDuration(k)
		if err != nil {
			return nil, fmt.Errorf("worksteal: invalid panic rate duration %q: %w", k, err)
		}
		rates[d] = v
	}
	return rates, nil
}

func (c *Config) isDefined(key ...string) bool {
	return c.meta.IsDefined(key...)
}

// Options returns the options equivalent to the keys set in c.
func (c *Config) Options() []Option {
	var opts []Option
	add := func(key string, opt Option) {
		if c.isDefined("runtime", key) {
			opts = append(opts, opt)
		}
	}
	add("cores", WithCores(c.Runtime.Cores))
	add("local_queue_capacity", WithLocalQueueCapacity(c.Runtime.LocalQueueCapacity))
	add("global_queue_interval", WithGlobalQueueInterval(c.Runtime.GlobalQueueInterval))
	add("tick_budget", WithTickBudget(c.Runtime.TickBudget))
	add("steal_rounds", WithStealRounds(c.Runtime.StealRounds))
	add("max_tasks", WithMaxTasks(c.Runtime.MaxTasks))
	add("pin_threads", WithPinThreads(c.Runtime.PinThreads))
	if c.isDefined("logging", "panic_rates") {
		// validated by finishConfig
		rates, _ := c.panicRates()
		opts = append(opts, WithPanicLogRates(rates))
	}
	return opts
}

// WithConfig applies every key set in cfg. A nil cfg is ignored.
func WithConfig(cfg *Config) Option {
	return &optionImpl{func(opts *runtimeOptions) error {
		if cfg == nil {
			return nil
		}
		for _, opt := range cfg.Options() {
			if err := opt.applyRuntime(opts); err != nil {
				return err
			}
		}
		return nil
	}}
}
