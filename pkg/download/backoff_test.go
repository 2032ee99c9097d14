package download

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestBackoffNonDecreasing(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	ms := func(n int64) time.Duration { return time.Duration(n) * time.Millisecond }

	properties.Property("exponential backoff never decreases and honors its cap", prop.ForAll(
		func(initial, max int64, factor float64, attempt int) bool {
			p := Exponential{Initial: ms(initial), Factor: factor, Max: ms(max)}
			d0, d1 := p.Delay(attempt), p.Delay(attempt+1)
			return d1 >= d0 && d1 <= ms(max)
		},
		gen.Int64Range(0, 5000),
		gen.Int64Range(1, 600000),
		gen.Float64Range(0, 4),
		gen.IntRange(0, 64),
	))

	properties.Property("linear backoff never decreases and honors its cap", prop.ForAll(
		func(initial, step, max int64, attempt int) bool {
			p := Linear{Initial: ms(initial), Step: ms(step), Max: ms(max)}
			d0, d1 := p.Delay(attempt), p.Delay(attempt+1)
			return d1 >= d0 && d1 <= ms(max)
		},
		gen.Int64Range(0, 5000),
		gen.Int64Range(-100, 5000),
		gen.Int64Range(1, 600000),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}

func TestBackoffPolicies(t *testing.T) {
	assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second, 4 * time.Second},
		[]time.Duration{DefaultPolicy().Delay(1), DefaultPolicy().Delay(2), DefaultPolicy().Delay(3)})

	exp := Exponential{Initial: 100 * time.Millisecond, Factor: 2, Max: time.Second}
	assert.Equal(t, 100*time.Millisecond, exp.Delay(1))
	assert.Equal(t, 400*time.Millisecond, exp.Delay(3))
	assert.Equal(t, time.Second, exp.Delay(10))
	assert.Zero(t, exp.Delay(0))

	assert.Equal(t, 5*time.Second, Constant(5*time.Second).Delay(7))
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
