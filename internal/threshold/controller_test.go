package threshold

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	twoSources = []string{"https://a", "https://b"}
	oneSource  = []string{"https://a", "https://a"}
)

func TestFiveSuccessesClampToMin(t *testing.T) {
	c := New(DefaultConfig())
	for i := 0; i < 5; i++ {
		c.Observe(twoSources)
	}
	assert.Equal(t, 0.05, c.Value())
}

func TestFiveFailuresRaiseToPointTwo(t *testing.T) {
	c := New(DefaultConfig())
	for i := 0; i < 5; i++ {
		out := c.Observe(oneSource)
		assert.False(t, out.Success)
	}
	assert.InDelta(t, 0.2, c.Value(), 1e-9)
}

func TestClampingForRandomSequences(t *testing.T) {
	cfg := DefaultConfig()
	rng := rand.New(rand.NewSource(7))
	for _, start := range []float64{-1, 0, 0.05, 0.1, 0.3, 0.5, 2} {
		c := New(Config{Min: cfg.Min, Max: cfg.Max, Step: cfg.Step, Initial: start})
		assert.GreaterOrEqual(t, c.Value(), cfg.Min)
		assert.LessOrEqual(t, c.Value(), cfg.Max)
		for i := 0; i < 200; i++ {
			out := c.Record(rng.Intn(2) == 0)
			assert.GreaterOrEqual(t, out.After, cfg.Min)
			assert.LessOrEqual(t, out.After, cfg.Max)
		}
	}
}

func TestRecordOutcome(t *testing.T) {
	c := New(DefaultConfig())
	out := c.Record(true)
	assert.True(t, out.Success)
	assert.Equal(t, 0.1, out.Before)
	assert.InDelta(t, 0.08, out.After, 1e-12)
}

func TestRestore(t *testing.T) {
	c := New(DefaultConfig())
	assert.Equal(t, 0.3, c.Restore(0.3))
	assert.Equal(t, 0.5, c.Restore(9))
	assert.Equal(t, 0.05, c.Restore(-9))
}

func TestNudge(t *testing.T) {
	c := New(DefaultConfig())
	out := c.Nudge(-0.01)
	assert.InDelta(t, 0.09, out.After, 1e-12)
	for i := 0; i < 10; i++ {
		c.Nudge(-0.01)
	}
	assert.Equal(t, 0.05, c.Value())
}

func TestIsSuccess(t *testing.T) {
	assert.True(t, IsSuccess(twoSources))
	assert.False(t, IsSuccess(oneSource))
	assert.False(t, IsSuccess(nil))
	assert.False(t, IsSuccess([]string{"https://a", ""}))
	assert.Equal(t, []string{"b", "a"}, Distinct([]string{"b", "a", "b", ""}))
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{Min: 0.5, Max: 0.1}.Validate())
	assert.Error(t, Config{Min: 0, Max: 1, Step: -1}.Validate())
}

func TestConcurrentObserveLosesNoUpdates(t *testing.T) {
	c := New(Config{Min: -1000, Max: 1000, Step: 1, Initial: 0})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				c.Record(false)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1000.0, c.Value())
}
