package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lysyi3m/match-watch/app/database"
)

func kickoffRecord(at time.Time) database.Match {
	return database.Match{Date: at.Format("02.01.06"), Time: at.Format("15:04")}
}

func TestPolicyNextDelay(t *testing.T) {
	policy := DefaultPolicy()
	policy.Location = time.UTC
	now := time.Date(2024, 5, 12, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		records []database.Match
		want    time.Duration
	}{
		{"no records", nil, 8 * time.Hour},
		{"reported match does not constrain", []database.Match{{Result: "3:1", HasReport: true, Date: "12.05.24", Time: "11:00"}}, 8 * time.Hour},
		{"result waits for report", []database.Match{{Result: "3:1"}}, 20 * time.Minute},
		{"kickoff soon", []database.Match{kickoffRecord(now.Add(2 * time.Hour))}, 3*time.Hour + 30*time.Minute},
		{"kickoff far away", []database.Match{kickoffRecord(now.Add(48 * time.Hour))}, 8 * time.Hour},
		{"result overdue", []database.Match{kickoffRecord(now.Add(-3 * time.Hour))}, 10 * time.Minute},
		{"unknown kickoff", []database.Match{{Date: "tbd"}}, 8 * time.Hour},
		{"minimum wins", []database.Match{
			kickoffRecord(now.Add(time.Hour)),
			{Result: "1:0"},
			{Result: "2:0", HasReport: true},
		}, 20 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.NextDelay(now, tt.records))
		})
	}
}

func TestPolicyFailureDelay(t *testing.T) {
	policy := DefaultPolicy()

	assert.Equal(t, 3*time.Hour, policy.FailureDelay(1))
	assert.Equal(t, 3*time.Hour, policy.FailureDelay(2))
	assert.Equal(t, 24*time.Hour, policy.FailureDelay(3))
	assert.Equal(t, 24*time.Hour, policy.FailureDelay(40))
}

func TestPolicyJitter(t *testing.T) {
	policy := DefaultPolicy()
	for range 100 {
		j := policy.Jitter()
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, 10*time.Second)
	}

	policy.StartupJitter = 0
	assert.Equal(t, time.Duration(0), policy.Jitter())
}
