package schedule

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/artifactgaming/carlbot/internal/boterr"
	"github.com/artifactgaming/carlbot/internal/persistence"
	"github.com/artifactgaming/carlbot/internal/router"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// nullResponder drops every message.
type nullResponder struct{}

func (nullResponder) Send(string, string) error             { return nil }
func (nullResponder) SendFile(string, string, []byte) error { return nil }

type nullDirectory struct{}

func (nullDirectory) ResolveMember(*router.Context, string) (string, bool)       { return "", false }
func (nullDirectory) ResolveMemberOrRole(*router.Context, string) (string, bool) { return "", false }
func (nullDirectory) MemberName(*router.Context, string) (string, bool)          { return "", false }
func (nullDirectory) ChannelName(*router.Context, string) (string, bool)         { return "", false }

// replaySpy is a schedulable leaf that records the contexts it ran under.
type replaySpy struct {
	mu        sync.Mutex
	callsign  string
	runs      int
	scheduled bool
	tokens    []string
	fired     chan struct{}
}

func newReplaySpy(callsign string) *replaySpy {
	return &replaySpy{callsign: callsign, fired: make(chan struct{}, 16)}
}

func (c *replaySpy) Callsign() string  { return c.callsign }
func (c *replaySpy) Schedulable() bool { return true }

func (c *replaySpy) Run(ctx *router.Context, raw string, tokens []string) error {
	c.mu.Lock()
	c.runs++
	c.scheduled = ctx.Scheduled
	c.tokens = tokens
	c.mu.Unlock()
	select {
	case c.fired <- struct{}{}:
	default:
	}
	return nil
}

func (c *replaySpy) snapshot() (int, bool, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs, c.scheduled, c.tokens
}

// unscheduledCommand is a plain leaf without the schedulable marker.
type unscheduledCommand struct{}

func (unscheduledCommand) Callsign() string { return "plain" }
func (unscheduledCommand) Run(*router.Context, string, []string) error {
	return nil
}

func testFactory() ContextFactory {
	return func(guildID, channelID string) *router.Context {
		return &router.Context{
			GuildID:   guildID,
			ChannelID: channelID,
			Directory: nullDirectory{},
			Responder: nullResponder{},
		}
	}
}

func newTestEngine(t *testing.T, top *router.Router) (*Engine, *persistence.Persistence) {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine, err := NewEngine(store, top, testFactory())
	require.NoError(t, err)
	engine.unit = 5 * time.Millisecond
	t.Cleanup(engine.StopAll)
	return engine, store
}

func schedulableTree(spy *replaySpy) *router.Router {
	top := router.New("")
	top.Register(router.NewSet("quote", spy))
	top.Register(unscheduledCommand{})
	return top
}

func TestAddRejectsNonPositiveInterval(t *testing.T) {
	engine, _ := newTestEngine(t, schedulableTree(newReplaySpy("get")))

	_, err := engine.Add(context.Background(), "u1", "g1", "c1", "quote get greeting", 0)
	var validation *boterr.ValidationError
	require.True(t, errors.As(err, &validation))
}

func TestAddRejectsUnknownCommand(t *testing.T) {
	engine, _ := newTestEngine(t, schedulableTree(newReplaySpy("get")))

	_, err := engine.Add(context.Background(), "u1", "g1", "c1", "nope", 1)
	var notFound *boterr.NotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestAddRejectsUnschedulableLeaf(t *testing.T) {
	engine, _ := newTestEngine(t, schedulableTree(newReplaySpy("get")))

	_, err := engine.Add(context.Background(), "u1", "g1", "c1", "plain", 1)
	var notFound *boterr.NotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestAddRejectsBareSet(t *testing.T) {
	engine, _ := newTestEngine(t, schedulableTree(newReplaySpy("get")))

	_, err := engine.Add(context.Background(), "u1", "g1", "c1", "quote", 1)
	var validation *boterr.ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Contains(t, validation.Error(), "Modules cannot be scheduled.")
}

func TestAddPersistsAndReplays(t *testing.T) {
	spy := newReplaySpy("get")
	engine, _ := newTestEngine(t, schedulableTree(spy))
	ctx := context.Background()

	entry, err := engine.Add(ctx, "u1", "g1", "c1", `quote get "two words"`, 1)
	require.NoError(t, err)
	require.NotEmpty(t, entry.ID)

	entries, err := engine.List(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.Equal(t, `quote get "two words"`, entries[0].Raw)

	select {
	case <-spy.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled command never fired")
	}

	runs, scheduled, tokens := spy.snapshot()
	assert.GreaterOrEqual(t, runs, 1)
	assert.True(t, scheduled, "replay context must be flagged as scheduled")
	assert.Equal(t, []string{"two words"}, tokens, "stored raw must tokenize like the live dispatch")
}

func TestListKeepsInsertionOrder(t *testing.T) {
	engine, _ := newTestEngine(t, schedulableTree(newReplaySpy("get")))
	ctx := context.Background()

	first, err := engine.Add(ctx, "u1", "g1", "c1", "quote get a", 1)
	require.NoError(t, err)
	second, err := engine.Add(ctx, "u1", "g1", "c1", "quote get b", 2)
	require.NoError(t, err)

	entries, err := engine.List(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.ID, entries[0].ID)
	assert.Equal(t, second.ID, entries[1].ID)
}

func TestStopRemovesEntry(t *testing.T) {
	engine, _ := newTestEngine(t, schedulableTree(newReplaySpy("get")))
	ctx := context.Background()

	entry, err := engine.Add(ctx, "u1", "g1", "c1", "quote get greeting", 1)
	require.NoError(t, err)

	require.NoError(t, engine.Stop(ctx, "g1", entry.ID))

	entries, err := engine.List(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	err = engine.Stop(ctx, "g1", entry.ID)
	var notFound *boterr.NotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestRestoreStartsPersistedEntries(t *testing.T) {
	spy := newReplaySpy("get")
	top := schedulableTree(spy)

	store, err := persistence.Open(filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	first, err := NewEngine(store, top, testFactory())
	require.NoError(t, err)
	first.unit = 5 * time.Millisecond

	ctx := context.Background()
	entry, err := first.Add(ctx, "u1", "g1", "c1", "quote get greeting", 1)
	require.NoError(t, err)
	first.StopAll()
	for len(spy.fired) > 0 {
		<-spy.fired
	}

	// A fresh engine over the same database stands the timers back up.
	second, err := NewEngine(store, top, testFactory())
	require.NoError(t, err)
	second.unit = 5 * time.Millisecond
	t.Cleanup(second.StopAll)

	require.NoError(t, second.Restore(ctx, "g1"))

	select {
	case <-spy.fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("restored schedule %s never fired", entry.ID)
	}
}

func TestRestoreSkipsRunningEntries(t *testing.T) {
	spy := newReplaySpy("get")
	engine, _ := newTestEngine(t, schedulableTree(spy))
	ctx := context.Background()

	_, err := engine.Add(ctx, "u1", "g1", "c1", "quote get greeting", 1)
	require.NoError(t, err)

	// Restoring while the timer runs must not double-start it.
	require.NoError(t, engine.Restore(ctx, "g1"))
	assert.Len(t, engine.jobs.List(), 1)
}

func TestRequoteRoundTrip(t *testing.T) {
	cases := [][]string{
		{"quote", "get", "greeting"},
		{"quote", "add", "key", "multi word value"},
		{"say", ""},
	}
	for _, tokens := range cases {
		assert.Equal(t, tokens, router.Tokenize(requote(tokens)), "tokens: %#v", tokens)
	}
}
