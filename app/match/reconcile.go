package match

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/lysyi3m/match-watch/app/database"
	"github.com/lysyi3m/match-watch/app/source"
)

type TransitionKind string

const (
	TransitionResult TransitionKind = "result"
	TransitionReport TransitionKind = "report"
)

// Transition is a forward change of one record that subscribers hear about.
type Transition struct {
	Match       database.Match
	ProviderIDs []string
	Kind        TransitionKind
}

type Result struct {
	Records     []database.Match // merged state of every fetched record
	Transitions []Transition
	Inserted    int
	Merged      int
	Skipped     int
}

type Reconciler struct {
	matches database.MatchRepository
}

func NewReconciler(matches database.MatchRepository) *Reconciler {
	return &Reconciler{matches: matches}
}

// Reconcile merges one provider's fetched schedule into the store and
// returns the transitions it caused. Any store error aborts the pass.
func (r *Reconciler) Reconcile(ctx context.Context, providerID string, candidates []source.Candidate) (*Result, error) {
	result := &Result{}

	order := make([]string, 0, len(candidates))
	lookup := make(map[string]*source.Candidate, len(candidates))
	for i := range candidates {
		c := candidates[i]
		if strings.TrimSpace(c.Date) == "" || strings.TrimSpace(c.TeamA) == "" || strings.TrimSpace(c.TeamB) == "" {
			slog.Debug("Skipping incomplete candidate", "provider", providerID, "date", c.Date, "team_a", c.TeamA, "team_b", c.TeamB)
			result.Skipped++
			continue
		}

		id := Identify(c.Date, c.TeamA, c.TeamB)
		if first, ok := lookup[id]; ok {
			absorb(first, &c)
			continue
		}
		lookup[id] = &c
		order = append(order, id)
	}

	if len(order) == 0 {
		return result, nil
	}

	stored, err := r.matches.FindByIDs(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored matches: %w", err)
	}

	merged := make(map[string]database.Match, len(order))
	for _, m := range stored {
		if err := r.merge(ctx, providerID, &m, lookup[m.ID], result); err != nil {
			return nil, err
		}
		merged[m.ID] = m
		result.Merged++
	}

	var fresh []database.Match
	for _, id := range order {
		if _, ok := merged[id]; ok {
			continue
		}
		fresh = append(fresh, newMatch(id, providerID, lookup[id]))
	}

	existing, err := r.matches.InsertMatches(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("failed to insert matches: %w", err)
	}

	// Rows another provider inserted since the lookup go through the merge path.
	var raced []database.Match
	if len(existing) > 0 {
		raced, err = r.matches.FindByIDs(ctx, existing)
		if err != nil {
			return nil, fmt.Errorf("failed to reload raced matches: %w", err)
		}
	}
	for _, m := range raced {
		if err := r.merge(ctx, providerID, &m, lookup[m.ID], result); err != nil {
			return nil, err
		}
		merged[m.ID] = m
		result.Merged++
	}

	for _, m := range fresh {
		if _, ok := merged[m.ID]; ok {
			continue
		}
		merged[m.ID] = m
		result.Inserted++
	}

	result.Records = make([]database.Match, 0, len(order))
	for _, id := range order {
		result.Records = append(result.Records, merged[id])
	}

	return result, nil
}

// merge applies the candidate onto a stored record. Each write is guarded in
// the store, so an event is only raised by the pass that actually moved the
// record forward.
func (r *Reconciler) merge(ctx context.Context, providerID string, m *database.Match, c *source.Candidate, result *Result) error {
	added, err := r.matches.AddProvider(ctx, m.ID, providerID)
	if err != nil {
		return err
	}
	if added && !slices.Contains(m.ProviderIDs, providerID) {
		m.ProviderIDs = append(m.ProviderIDs, providerID)
	}

	if m.League == "" && c.League != "" {
		if _, err := r.matches.BackfillLeague(ctx, m.ID, c.League); err != nil {
			return err
		}
		m.League = c.League
	}
	if m.ReportURL == "" && c.ReportURL != "" {
		if _, err := r.matches.BackfillReportURL(ctx, m.ID, c.ReportURL); err != nil {
			return err
		}
		m.ReportURL = c.ReportURL
	}

	var resultMoved, reportMoved bool
	if !m.HasResult() && c.Result != "" {
		if resultMoved, err = r.matches.MarkResult(ctx, m.ID, c.Result); err != nil {
			return err
		}
		m.Result = c.Result
	}
	if !m.HasReport && c.HasReport {
		if reportMoved, err = r.matches.MarkReport(ctx, m.ID); err != nil {
			return err
		}
		m.HasReport = true
	}

	var kind TransitionKind
	switch {
	case reportMoved:
		kind = TransitionReport
	case resultMoved:
		kind = TransitionResult
	default:
		return nil
	}

	result.Transitions = append(result.Transitions, Transition{
		Match:       *m,
		ProviderIDs: slices.Clone(m.ProviderIDs),
		Kind:        kind,
	})
	return nil
}

// absorb folds a duplicate row of the same batch into the first one without
// letting it move anything backwards.
func absorb(first, dup *source.Candidate) {
	if first.Result == "" {
		first.Result = dup.Result
	}
	first.HasReport = first.HasReport || dup.HasReport
	if first.League == "" {
		first.League = dup.League
	}
	if first.ReportURL == "" {
		first.ReportURL = dup.ReportURL
	}
}

func newMatch(id, providerID string, c *source.Candidate) database.Match {
	return database.Match{
		ID:          id,
		Date:        strings.TrimSpace(c.Date),
		Time:        strings.TrimSpace(c.Time),
		TeamA:       strings.TrimSpace(c.TeamA),
		TeamB:       strings.TrimSpace(c.TeamB),
		Result:      c.Result,
		HasReport:   c.HasReport,
		ProviderIDs: []string{providerID},
		League:      c.League,
		ReportURL:   c.ReportURL,
	}
}
