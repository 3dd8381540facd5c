package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithNoChecksReportsHealthy(t *testing.T) {
	c := NewChecker(nil)
	resp := c.Run(context.Background())

	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestRunAggregatesHealthyChecks(t *testing.T) {
	c := NewChecker(nil)
	c.Register("db", func(context.Context) error { return nil })
	c.Register("cache", func(context.Context) error { return nil })

	resp := c.Run(context.Background())

	assert.Equal(t, StatusHealthy, resp.Status)
	require.Len(t, resp.Checks, 2)
	assert.Equal(t, StatusHealthy, resp.Checks["db"].Status)
	assert.Equal(t, StatusHealthy, resp.Checks["cache"].Status)
}

func TestRunMarksOverallUnhealthyOnAnyFailure(t *testing.T) {
	c := NewChecker(nil)
	c.Register("db", func(context.Context) error { return nil })
	c.Register("cache", func(context.Context) error { return errors.New("connection refused") })

	resp := c.Run(context.Background())

	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, StatusHealthy, resp.Checks["db"].Status)
	assert.Equal(t, StatusUnhealthy, resp.Checks["cache"].Status)
	assert.Equal(t, "connection refused", resp.Checks["cache"].Error)
}

func TestRegisterReplacesExistingCheckWithoutDisturbingOrder(t *testing.T) {
	c := NewChecker(nil)
	c.Register("db", func(context.Context) error { return errors.New("stale") })
	c.Register("cache", func(context.Context) error { return nil })
	c.Register("db", func(context.Context) error { return nil })

	require.Equal(t, []string{"db", "cache"}, c.checkOrder)

	resp := c.Run(context.Background())
	assert.Equal(t, StatusHealthy, resp.Checks["db"].Status)
}

func TestRunInvokesOnResultCallbackPerCheck(t *testing.T) {
	results := make(map[string]bool)
	c := NewChecker(func(name string, healthy bool) {
		results[name] = healthy
	})
	c.Register("db", func(context.Context) error { return nil })
	c.Register("cache", func(context.Context) error { return errors.New("down") })

	c.Run(context.Background())

	assert.Equal(t, map[string]bool{"db": true, "cache": false}, results)
}
