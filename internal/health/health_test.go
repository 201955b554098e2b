package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerRun(t *testing.T) {
	checker := NewChecker()

	checker.Register("database", func(ctx context.Context) (Status, string) {
		return StatusDegraded, "database unreachable, serving last-known values"
	})
	checker.Register("bacnet", func(ctx context.Context) (Status, string) {
		return StatusHealthy, "listening"
	})

	results := checker.Run(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusDegraded, results["database"].Status)
	assert.Equal(t, StatusHealthy, results["bacnet"].Status)
	assert.False(t, results["database"].LastCheck.IsZero())
}

func TestCheckerOverall(t *testing.T) {
	checker := NewChecker()
	assert.Equal(t, StatusHealthy, checker.Overall())

	checker.Register("a", func(ctx context.Context) (Status, string) {
		return StatusDegraded, ""
	})
	checker.Run(context.Background())
	assert.Equal(t, StatusDegraded, checker.Overall())

	checker.Register("b", func(ctx context.Context) (Status, string) {
		return StatusUnhealthy, ""
	})
	checker.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, checker.Overall())
}
