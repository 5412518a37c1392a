package statistics

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artifactgaming/carlbot/internal/persistence"
	"github.com/artifactgaming/carlbot/internal/router"
)

type nullResponder struct{}

func (nullResponder) Send(string, string) error             { return nil }
func (nullResponder) SendFile(string, string, []byte) error { return nil }

type namedChannels struct{}

func (namedChannels) ResolveMember(*router.Context, string) (string, bool)       { return "", false }
func (namedChannels) ResolveMemberOrRole(*router.Context, string) (string, bool) { return "", false }
func (namedChannels) MemberName(*router.Context, string) (string, bool)          { return "", false }
func (namedChannels) ChannelName(ctx *router.Context, id string) (string, bool) {
	return "chan-" + id, true
}

func newTestModule(t *testing.T) *Module {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m, err := NewModule(store)
	require.NoError(t, err)
	// Pin the clock to a Wednesday so the week is stable.
	m.now = func() time.Time {
		return time.Date(2024, time.March, 13, 15, 0, 0, 0, time.UTC)
	}
	return m
}

func messageContext(channelID string) *router.Context {
	return &router.Context{
		Ctx:         context.Background(),
		GuildID:     "g1",
		ChannelID:   channelID,
		PrincipalID: "u1",
		Directory:   namedChannels{},
		Responder:   nullResponder{},
	}
}

func TestCollectionIsOffByDefault(t *testing.T) {
	m := newTestModule(t)

	enabled, err := m.Enabled(context.Background(), "g1")
	require.NoError(t, err)
	assert.False(t, enabled)

	m.OnMessage(messageContext("c1"), "hello", false)

	weeks, err := m.CurrentWeek(context.Background(), "g1")
	require.NoError(t, err)
	assert.Empty(t, weeks)
}

func TestToggleFlipsState(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()

	enabled, err := m.Toggle(ctx, "g1")
	require.NoError(t, err)
	assert.True(t, enabled)

	enabled, err = m.Toggle(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, enabled)

	enabled, err = m.Enabled(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestCountsMessagesPerChannel(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()

	_, err := m.Toggle(ctx, "g1")
	require.NoError(t, err)

	m.OnMessage(messageContext("c1"), "one", false)
	m.OnMessage(messageContext("c1"), "two", true)
	m.OnMessage(messageContext("c2"), "three", false)

	weeks, err := m.CurrentWeek(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, weeks, 2)

	byChannel := map[string]ChannelWeek{}
	for _, w := range weeks {
		byChannel[w.ChannelID] = w
	}

	assert.Equal(t, int64(2), byChannel["c1"].Messages)
	assert.Equal(t, int64(1), byChannel["c1"].Images)
	assert.Equal(t, "chan-c1", byChannel["c1"].ChannelName)
	assert.Equal(t, int64(1), byChannel["c2"].Messages)
	assert.Equal(t, int64(0), byChannel["c2"].Images)

	// March 13th 2024 falls in the week starting Monday the 11th.
	assert.Equal(t, "03/11/2024", byChannel["c1"].WeekStart)
}

func TestWeekRolloverStartsFreshCounters(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()

	_, err := m.Toggle(ctx, "g1")
	require.NoError(t, err)

	m.OnMessage(messageContext("c1"), "old week", false)

	m.now = func() time.Time {
		return time.Date(2024, time.March, 20, 15, 0, 0, 0, time.UTC)
	}
	m.OnMessage(messageContext("c1"), "new week", false)

	weeks, err := m.CurrentWeek(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, weeks, 1)
	assert.Equal(t, "03/18/2024", weeks[0].WeekStart)
	assert.Equal(t, int64(1), weeks[0].Messages)
}

func TestConcurrentMessagesLoseNoCounts(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()

	_, err := m.Toggle(ctx, "g1")
	require.NoError(t, err)

	// Seed the week's row so every concurrent delivery takes the
	// in-database increment path.
	m.OnMessage(messageContext("c1"), "first", false)

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.OnMessage(messageContext("c1"), "burst", true)
			}
		}()
	}
	wg.Wait()

	weeks, err := m.CurrentWeek(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, weeks, 1)
	assert.Equal(t, int64(1+workers*perWorker), weeks[0].Messages)
	assert.Equal(t, int64(workers*perWorker), weeks[0].Images)
}
