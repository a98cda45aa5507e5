package replay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLivenessChecker_Observe(t *testing.T) {
	nowCalls := 0
	tnow, err := time.Parse(time.RFC3339, "2023-01-01T00:00:00Z")
	require.NoError(t, err)

	nowFunc := func() time.Time {
		nowCalls++
		return tnow
	}

	tests := []struct {
		timestamp          time.Time
		expectedResult     bool
		expectedTimeChecks int
	}{
		{tnow.Add(-5 * time.Second), false, 1},
		{tnow.Add(-4 * time.Second), false, 2},
		{tnow.Add(-3 * time.Second), true, 3}, // threshold reached
		{tnow.Add(-2 * time.Second), true, 3},
		{tnow.Add(-1 * time.Second), true, 3},
	}

	checker := NewLivenessChecker(3 * time.Second)
	checker.nowFunc = nowFunc

	for _, tt := range tests {
		result := checker.Observe(tt.timestamp.UnixMilli())
		require.Equal(t, tt.expectedResult, result)
		require.Equal(t, tt.expectedTimeChecks, nowCalls)
	}

	require.True(t, checker.IsLive())
}

func TestLivenessChecker_NonPositiveTimestampIgnored(t *testing.T) {
	checker := NewLivenessChecker(time.Second)
	require.False(t, checker.Observe(0))
	require.False(t, checker.Observe(-1))
	require.False(t, checker.IsLive())
}
