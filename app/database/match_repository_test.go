package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchRepoInsertAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewMatchRepository(newTestDB(t))

	existing, err := repo.InsertMatches(ctx, []Match{
		{ID: "aaa", Date: "12.05.24", Time: "18:00", TeamA: "A", TeamB: "B", ProviderIDs: []string{"p1"}},
		{ID: "bbb", Date: "13.05.24", Time: "19:30", TeamA: "C", TeamB: "D", Result: "9:3", HasReport: true},
	})
	require.NoError(t, err)
	assert.Empty(t, existing)

	matches, err := repo.FindByIDs(ctx, []string{"aaa", "bbb", "zzz"})
	require.NoError(t, err)
	require.Len(t, matches, 2)

	byID := map[string]Match{}
	for _, m := range matches {
		byID[m.ID] = m
	}
	assert.Equal(t, []string{"p1"}, byID["aaa"].ProviderIDs)
	aaa, bbb := byID["aaa"], byID["bbb"]
	assert.False(t, aaa.HasResult())
	assert.Equal(t, []string{}, byID["bbb"].ProviderIDs)
	assert.True(t, bbb.HasResult())
	assert.True(t, byID["bbb"].HasReport)

	empty, err := repo.FindByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMatchRepoInsertReportsExistingIDs(t *testing.T) {
	ctx := context.Background()
	repo := NewMatchRepository(newTestDB(t))

	_, err := repo.InsertMatches(ctx, []Match{{ID: "aaa", Date: "d", TeamA: "A", TeamB: "B", ProviderIDs: []string{"p1"}}})
	require.NoError(t, err)

	existing, err := repo.InsertMatches(ctx, []Match{
		{ID: "aaa", Date: "d", TeamA: "A", TeamB: "B", ProviderIDs: []string{"p2"}},
		{ID: "ccc", Date: "d", TeamA: "E", TeamB: "F"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa"}, existing)

	stored, err := repo.GetMatch(ctx, "aaa")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, stored.ProviderIDs, "conflicting insert must not touch the stored row")

	none, err := repo.InsertMatches(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMatchRepoAddProviderIsSetUnion(t *testing.T) {
	ctx := context.Background()
	repo := NewMatchRepository(newTestDB(t))

	_, err := repo.InsertMatches(ctx, []Match{{ID: "aaa", Date: "d", TeamA: "A", TeamB: "B", ProviderIDs: []string{"p1"}}})
	require.NoError(t, err)

	added, err := repo.AddProvider(ctx, "aaa", "p2")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.AddProvider(ctx, "aaa", "p1")
	require.NoError(t, err)
	assert.False(t, added)

	added, err = repo.AddProvider(ctx, "aaa", "p2")
	require.NoError(t, err)
	assert.False(t, added)

	stored, err := repo.GetMatch(ctx, "aaa")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, stored.ProviderIDs)
}

func TestMatchRepoBackfillIsFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	repo := NewMatchRepository(newTestDB(t))

	_, err := repo.InsertMatches(ctx, []Match{{ID: "aaa", Date: "d", TeamA: "A", TeamB: "B"}})
	require.NoError(t, err)

	changed, err := repo.BackfillLeague(ctx, "aaa", "")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.BackfillLeague(ctx, "aaa", "Kreisliga")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.BackfillLeague(ctx, "aaa", "Bezirksliga")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.BackfillReportURL(ctx, "aaa", "https://example.com/report/1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.BackfillReportURL(ctx, "aaa", "https://example.com/report/2")
	require.NoError(t, err)
	assert.False(t, changed)

	stored, err := repo.GetMatch(ctx, "aaa")
	require.NoError(t, err)
	assert.Equal(t, "Kreisliga", stored.League)
	assert.Equal(t, "https://example.com/report/1", stored.ReportURL)
}

func TestMatchRepoTransitionsAreGuarded(t *testing.T) {
	ctx := context.Background()
	repo := NewMatchRepository(newTestDB(t))

	_, err := repo.InsertMatches(ctx, []Match{{ID: "aaa", Date: "d", TeamA: "A", TeamB: "B"}})
	require.NoError(t, err)

	changed, err := repo.MarkResult(ctx, "aaa", "")
	require.NoError(t, err)
	assert.False(t, changed, "blank result is not a result")

	changed, err = repo.MarkResult(ctx, "aaa", "3:1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkResult(ctx, "aaa", "3:1")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = repo.MarkReport(ctx, "aaa")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkReport(ctx, "aaa")
	require.NoError(t, err)
	assert.False(t, changed)

	stored, err := repo.GetMatch(ctx, "aaa")
	require.NoError(t, err)
	assert.Equal(t, "3:1", stored.Result)
	assert.True(t, stored.HasReport)

	count, err := repo.GetMatchCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
