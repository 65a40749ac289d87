package healthcheck

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerThresholds(t *testing.T) {
	var redisDown, backendDown atomic.Bool
	check := func(flag *atomic.Bool) func(context.Context) error {
		return func(context.Context) error {
			if flag.Load() {
				return errors.New("connection refused")
			}
			return nil
		}
	}

	c := NewChecker(Config{
		Probes: []Probe{
			{Name: "redis", Critical: true, Check: check(&redisDown)},
			{Name: "backend", Check: check(&backendDown)},
		},
		MaxFailures: 2,
	})

	c.CheckNow(context.Background())
	assert.Equal(t, Healthy, c.OverallHealth())

	backendDown.Store(true)
	c.CheckNow(context.Background())
	assert.Equal(t, Healthy, c.OverallHealth(), "one failure is below the threshold")

	c.CheckNow(context.Background())
	assert.Equal(t, Degraded, c.OverallHealth())
	status := c.GetStatus("backend")
	require.NotNil(t, status)
	assert.False(t, status.IsHealthy)
	assert.Equal(t, "connection refused", status.LastError)

	redisDown.Store(true)
	c.CheckNow(context.Background())
	c.CheckNow(context.Background())
	assert.Equal(t, Unhealthy, c.OverallHealth())

	redisDown.Store(false)
	backendDown.Store(false)
	c.CheckNow(context.Background())
	assert.Equal(t, Healthy, c.OverallHealth())
	assert.Zero(t, c.GetStatus("redis").FailureCount)
}

func TestCheckerTimeout(t *testing.T) {
	c := NewChecker(Config{
		Probes: []Probe{{
			Name:     "slow",
			Critical: true,
			Check: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		}},
		Timeout:     10 * time.Millisecond,
		MaxFailures: 1,
	})

	c.CheckNow(context.Background())
	assert.Equal(t, Unhealthy, c.OverallHealth())
	assert.Contains(t, c.GetAllStatus()["slow"].LastError, "deadline")
	assert.Nil(t, c.GetStatus("missing"))
}

func TestHealthStatusString(t *testing.T) {
	assert.Equal(t, "healthy", Healthy.String())
	assert.Equal(t, "degraded", Degraded.String())
	assert.Equal(t, "unhealthy", Unhealthy.String())
}
