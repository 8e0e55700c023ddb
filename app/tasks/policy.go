package tasks

import (
	"math/rand/v2"
	"time"

	"github.com/lysyi3m/match-watch/app/database"
	"github.com/lysyi3m/match-watch/app/match"
)

// Policy decides when a provider is polled next.
type Policy struct {
	Ceiling        time.Duration // nothing pending
	AfterResult    time.Duration // result known, report may follow
	KickoffBuffer  time.Duration // added to time until kickoff
	Overdue        time.Duration // kickoff passed, no result yet
	RetryDelay     time.Duration
	AbandonDelay   time.Duration
	RetryThreshold int
	StartupJitter  time.Duration
	Location       *time.Location
}

func DefaultPolicy() Policy {
	return Policy{
		Ceiling:        8 * time.Hour,
		AfterResult:    20 * time.Minute,
		KickoffBuffer:  90 * time.Minute,
		Overdue:        10 * time.Minute,
		RetryDelay:     3 * time.Hour,
		AbandonDelay:   24 * time.Hour,
		RetryThreshold: 3,
		StartupJitter:  10 * time.Second,
		Location:       time.Local,
	}
}

// NextDelay is the tightest delay any of the fetched records asks for,
// capped by the ceiling.
func (p Policy) NextDelay(now time.Time, records []database.Match) time.Duration {
	delay := p.Ceiling

	for i := range records {
		m := &records[i]

		var candidate time.Duration
		switch {
		case m.HasReport:
			continue
		case m.HasResult():
			candidate = p.AfterResult
		default:
			kickoff, ok := match.Kickoff(m, p.location())
			if !ok {
				continue
			}
			if untilKickoff := kickoff.Sub(now); untilKickoff > 0 {
				candidate = untilKickoff + p.KickoffBuffer
			} else {
				candidate = p.Overdue
			}
		}

		delay = min(delay, candidate)
	}

	return delay
}

// FailureDelay is the backoff after the errorCount-th consecutive failure.
func (p Policy) FailureDelay(errorCount int) time.Duration {
	if errorCount < p.RetryThreshold {
		return p.RetryDelay
	}
	return p.AbandonDelay
}

// Jitter spreads first polls so a restart does not hit every source at once.
func (p Policy) Jitter() time.Duration {
	if p.StartupJitter <= 0 {
		return 0
	}
	return rand.N(p.StartupJitter)
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}
