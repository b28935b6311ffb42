package worksteal

import (
	"math"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOptions_defaults(t *testing.T) {
	opts, err := resolveOptions([]Option{nil})
	require.NoError(t, err)
	assert.Equal(t, runtime.GOMAXPROCS(0), opts.cores)
	assert.Equal(t, DefaultLocalQueueCapacity, opts.queueCapacity)
	assert.Equal(t, uint32(DefaultGlobalQueueInterval), opts.globalQueueInterval)
	assert.Equal(t, DefaultTickBudget, opts.tickBudget)
	assert.Equal(t, DefaultStealRounds, opts.stealRounds)
	assert.Zero(t, opts.maxTasks)
	assert.False(t, opts.pinThreads)
	assert.Nil(t, opts.logger)
}

func TestResolveOptions_invalid(t *testing.T) {
	for name, opt := range map[string]Option{
		`cores zero`:            WithCores(0),
		`capacity one`:          WithLocalQueueCapacity(1),
		`capacity odd`:          WithLocalQueueCapacity(48),
		`capacity overflow`:     WithLocalQueueCapacity(math.MaxInt),
		`interval negative`:     WithGlobalQueueInterval(-1),
		`tick budget zero`:      WithTickBudget(0),
		`steal rounds`:          WithStealRounds(17),
		`max tasks negative`:    WithMaxTasks(-1),
		`steal rounds negative`: WithStealRounds(-1),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := resolveOptions([]Option{opt})
			assert.Error(t, err)
		})
	}
}

func TestNew_invalidPanicLogRates(t *testing.T) {
	_, err := New(WithCores(1), WithPanicLogRates(map[time.Duration]int{
		time.Second: 10,
		time.Minute: 5,
	}))
	assert.ErrorContains(t, err, `invalid panic log rates`)

	rt, err := New(WithCores(1), WithPanicLogRates(nil))
	require.NoError(t, err)
	assert.Nil(t, rt.panicLimiter)
	require.NoError(t, rt.Close())
}

func TestWithPinThreads(t *testing.T) {
	rt := startTestRuntime(t, WithCores(2), WithPinThreads(true))
	v, err := rt.BlockOn(testContext(t), readyBody(1))
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}
