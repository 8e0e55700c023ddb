package notify

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/match-watch/app/database"
	"github.com/lysyi3m/match-watch/app/match"
)

type fakeSender struct {
	mu       sync.Mutex
	failFor  map[string]bool // by endpoint
	payloads map[string]Payload
}

func newFakeSender(failing ...string) *fakeSender {
	s := &fakeSender{failFor: map[string]bool{}, payloads: map[string]Payload{}}
	for _, endpoint := range failing {
		s.failFor[endpoint] = true
	}
	return s
}

func (s *fakeSender) Send(ctx context.Context, subscription database.PushSubscription, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failFor[subscription.Endpoint] {
		return errors.New("gone")
	}
	var p Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	s.payloads[subscription.Endpoint] = p
	return nil
}

type fixture struct {
	subscribers *database.SubscriberRepo
	providers   *database.ProviderRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "notify.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, _, err = database.RunMigrations(db)
	require.NoError(t, err)

	return &fixture{
		subscribers: database.NewSubscriberRepository(db),
		providers:   database.NewProviderRepository(db),
	}
}

func (f *fixture) provider(t *testing.T, name string) string {
	t.Helper()
	p, err := f.providers.CreateProvider(context.Background(), database.Provider{URL: "https://example.com/" + name, Name: name})
	require.NoError(t, err)
	return p.ID
}

func (f *fixture) subscriber(t *testing.T, id string, providerIDs ...string) {
	t.Helper()
	require.NoError(t, f.subscribers.UpsertSubscriber(context.Background(), database.Subscriber{
		ID:           id,
		Subscription: database.PushSubscription{Endpoint: id, Keys: database.PushKeys{P256dh: "k", Auth: "a"}},
		ProviderIDs:  providerIDs,
	}))
}

func (f *fixture) errorCount(t *testing.T, id string) int {
	t.Helper()
	s, err := f.subscribers.GetSubscriber(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s.ErrorCount
}

func resultTransition(providerIDs ...string) match.Transition {
	return match.Transition{
		Match: database.Match{
			ID: match.Identify("12.05.24", "A", "B"), Date: "12.05.24", Time: "18:00",
			TeamA: "A", TeamB: "B", Result: "3:1", ProviderIDs: providerIDs,
		},
		ProviderIDs: providerIDs,
		Kind:        match.TransitionResult,
	}
}

func TestFanoutNotify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	north := f.provider(t, "Kreisliga Nord")
	south := f.provider(t, "Kreisliga Süd")
	other := f.provider(t, "Bezirksliga")

	f.subscriber(t, "s-north", north)
	f.subscriber(t, "s-south", south)
	f.subscriber(t, "s-both", south, north)
	f.subscriber(t, "s-other", other)
	f.subscriber(t, "s-dead", north)

	sender := newFakeSender("s-dead")
	fanout := NewFanout(f.subscribers, f.providers, sender, 2, nil)

	stats, err := fanout.Notify(ctx, resultTransition(north, south))
	require.NoError(t, err)
	assert.Equal(t, Stats{Subscribers: 4, Delivered: 3, Failed: 1}, stats)

	assert.Equal(t, "Kreisliga Nord: A vs B ended 3:1", sender.payloads["s-north"].Msg)
	assert.Equal(t, "Kreisliga Süd: A vs B ended 3:1", sender.payloads["s-south"].Msg)
	assert.Equal(t, "Kreisliga Nord: A vs B ended 3:1", sender.payloads["s-both"].Msg,
		"name follows the record's provider order")
	assert.NotContains(t, sender.payloads, "s-other")

	p := sender.payloads["s-north"]
	assert.Equal(t, match.Identify("12.05.24", "A", "B"), p.ID)
	require.NotNil(t, p.HasReport)
	assert.False(t, *p.HasReport)

	assert.Equal(t, -1, f.errorCount(t, "s-north"))
	assert.Equal(t, -1, f.errorCount(t, "s-both"))
	assert.Equal(t, 1, f.errorCount(t, "s-dead"))
	assert.Equal(t, 0, f.errorCount(t, "s-other"))

	dead, err := f.subscribers.GetSubscriber(ctx, "s-dead")
	require.NoError(t, err)
	assert.NotNil(t, dead, "fanout never deletes")
}

func TestFanoutReportMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	north := f.provider(t, "Kreisliga Nord")
	f.subscriber(t, "s1", north)

	sender := newFakeSender()
	transition := resultTransition(north)
	transition.Kind = match.TransitionReport
	transition.Match.HasReport = true

	_, err := NewFanout(f.subscribers, f.providers, sender, 0, nil).Notify(ctx, transition)
	require.NoError(t, err)

	p := sender.payloads["s1"]
	assert.Equal(t, "Kreisliga Nord: report available for A vs B (3:1)", p.Msg)
	require.NotNil(t, p.HasReport)
	assert.True(t, *p.HasReport)
}

func TestFanoutNoSubscribers(t *testing.T) {
	f := newFixture(t)
	sender := newFakeSender()

	stats, err := NewFanout(f.subscribers, f.providers, sender, 4, nil).Notify(context.Background(), resultTransition("nobody"))
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.Empty(t, sender.payloads)
}

func TestFanoutDeletedProviderName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.subscriber(t, "s1", "vanished")

	sender := newFakeSender()
	_, err := NewFanout(f.subscribers, f.providers, sender, 4, nil).Notify(ctx, resultTransition("vanished"))
	require.NoError(t, err)
	assert.Equal(t, "Match update: A vs B ended 3:1", sender.payloads["s1"].Msg)
}

func TestFanoutSendTest(t *testing.T) {
	f := newFixture(t)
	f.subscriber(t, "s1")

	sender := newFakeSender("broken")
	fanout := NewFanout(f.subscribers, f.providers, sender, 4, nil)

	require.NoError(t, fanout.SendTest(context.Background(), database.PushSubscription{Endpoint: "s1"}, "hello"))
	assert.Equal(t, Payload{Msg: "hello"}, sender.payloads["s1"])
	assert.Equal(t, 0, f.errorCount(t, "s1"), "test messages do not touch health")

	assert.Error(t, fanout.SendTest(context.Background(), database.PushSubscription{Endpoint: "broken"}, "hello"))
}

func TestPayloadShape(t *testing.T) {
	hasReport := false
	data, err := json.Marshal(Payload{ID: "abc", Msg: "m", HasReport: &hasReport})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"abc","msg":"m","hasReport":false}`, string(data))

	data, err = json.Marshal(Payload{Msg: "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"msg":"hi"}`, string(data))
}
