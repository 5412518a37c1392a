package authority

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artifactgaming/carlbot/internal/boterr"
	"github.com/artifactgaming/carlbot/internal/module"
	"github.com/artifactgaming/carlbot/internal/persistence"
	"github.com/artifactgaming/carlbot/internal/router"
)

var (
	capTest  = Capability{Name: "use widgets", Key: "widgets.use"}
	capOther = Capability{Name: "manage widgets", Key: "widgets.manage"}
)

// fakeModule declares capabilities and a flat command list.
type fakeModule struct {
	id   string
	caps []Capability
	cmds []router.Command
}

func (m *fakeModule) ID() string                         { return m.id }
func (m *fakeModule) Commands() []router.Command         { return m.cmds }
func (m *fakeModule) RequiredCapabilities() []Capability { return m.caps }

// gatedCommand requires capabilities and counts runs.
type gatedCommand struct {
	callsign string
	caps     []Capability
	runs     int
}

func (c *gatedCommand) Callsign() string                   { return c.callsign }
func (c *gatedCommand) RequiredCapabilities() []Capability { return c.caps }
func (c *gatedCommand) Run(*router.Context, string, []string) error {
	c.runs++
	return nil
}

type fakeOwners struct {
	ownerID string
	err     error
}

func (f *fakeOwners) IsOwner(principalID, guildID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return principalID == f.ownerID, nil
}

func newTestEngine(t *testing.T, owners OwnerChecker, modules ...module.Module) *Engine {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine, err := NewEngine(store, owners)
	require.NoError(t, err)

	if len(modules) == 0 {
		modules = []module.Module{&fakeModule{id: "widgets", caps: []Capability{capTest, capOther}}}
	}
	reg, err := BuildRegistry(modules)
	require.NoError(t, err)
	require.NoError(t, engine.SetRegistry(reg))
	return engine
}

func TestBuildRegistryWalksCommandTrees(t *testing.T) {
	nested := router.NewSet("widget", &gatedCommand{callsign: "use", caps: []Capability{capTest}})
	mod := &fakeModule{id: "widgets", cmds: []router.Command{nested}}

	reg, err := BuildRegistry([]module.Module{mod})
	require.NoError(t, err)

	got, ok := reg.ByName("use widgets")
	require.True(t, ok)
	assert.Equal(t, capTest, got)
}

func TestBuildRegistryRejectsKeyCollision(t *testing.T) {
	clashing := Capability{Name: "different name", Key: capTest.Key}
	_, err := BuildRegistry([]module.Module{
		&fakeModule{id: "a", caps: []Capability{capTest}},
		&fakeModule{id: "b", caps: []Capability{clashing}},
	})

	var cfg *boterr.ConfigurationError
	require.True(t, errors.As(err, &cfg))
}

func TestBuildRegistryToleratesRepeatedDeclaration(t *testing.T) {
	reg, err := BuildRegistry([]module.Module{
		&fakeModule{id: "a", caps: []Capability{capTest}},
		&fakeModule{id: "b", caps: []Capability{capTest}},
	})
	require.NoError(t, err)
	assert.Len(t, reg.Capabilities(), 1)
}

func TestRegistryByNameFallsBackToKey(t *testing.T) {
	reg, err := BuildRegistry([]module.Module{&fakeModule{id: "widgets", caps: []Capability{capTest}}})
	require.NoError(t, err)

	byKey, ok := reg.ByName("widgets.use")
	require.True(t, ok)
	assert.Equal(t, capTest, byKey)

	_, ok = reg.ByName("no such authority")
	assert.False(t, ok)
}

func TestGrantIsVisibleImmediately(t *testing.T) {
	engine := newTestEngine(t, &fakeOwners{ownerID: "owner"})
	ctx := context.Background()

	has, err := engine.HasCapability(ctx, "u1", "g1", capTest, false)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, engine.Grant(ctx, "u1", capTest, "g1"))

	has, err = engine.HasCapability(ctx, "u1", "g1", capTest, false)
	require.NoError(t, err)
	assert.True(t, has)

	// The other capability stays denied.
	has, err = engine.HasCapability(ctx, "u1", "g1", capOther, false)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestOwnerBypass(t *testing.T) {
	engine := newTestEngine(t, &fakeOwners{ownerID: "owner"})
	ctx := context.Background()

	has, err := engine.HasCapability(ctx, "owner", "g1", capTest, false)
	require.NoError(t, err)
	assert.True(t, has)

	// The bypass flag checks the raw matrix instead.
	has, err = engine.HasCapability(ctx, "owner", "g1", capTest, true)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestOwnerLookupFailureIsStorageError(t *testing.T) {
	engine := newTestEngine(t, &fakeOwners{err: errors.New("gateway down")})

	_, err := engine.HasCapability(context.Background(), "u1", "g1", capTest, false)
	var storage *boterr.StorageError
	require.True(t, errors.As(err, &storage))
}

func TestDuplicateGrantRowsStillGrant(t *testing.T) {
	engine := newTestEngine(t, &fakeOwners{})
	ctx := context.Background()

	require.NoError(t, engine.Grant(ctx, "u1", capTest, "g1"))
	require.NoError(t, engine.Grant(ctx, "u1", capTest, "g1"))
	require.NoError(t, engine.Grant(ctx, "u1", capOther, "g1"))

	has, err := engine.HasCapability(ctx, "u1", "g1", capTest, false)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRevokeClearsEveryRow(t *testing.T) {
	engine := newTestEngine(t, &fakeOwners{})
	ctx := context.Background()

	require.NoError(t, engine.Grant(ctx, "u1", capTest, "g1"))
	require.NoError(t, engine.Grant(ctx, "u1", capTest, "g1"))

	require.NoError(t, engine.Revoke(ctx, "u1", capTest, "g1"))

	has, err := engine.HasCapability(ctx, "u1", "g1", capTest, false)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRoleCapabilityHasNoOwnerBypass(t *testing.T) {
	engine := newTestEngine(t, &fakeOwners{ownerID: "r1"})
	ctx := context.Background()

	has, err := engine.HasRoleCapability(ctx, "r1", "g1", capTest)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, engine.Grant(ctx, "r1", capTest, "g1"))
	has, err = engine.HasRoleCapability(ctx, "r1", "g1", capTest)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestGateDeniesWithMissingList(t *testing.T) {
	engine := newTestEngine(t, &fakeOwners{})
	gate := engine.Gate()

	cmd := &gatedCommand{callsign: "use", caps: []Capability{capTest, capOther}}
	ctx := &router.Context{Ctx: context.Background(), GuildID: "g1", PrincipalID: "u1"}

	err := gate(ctx, cmd)
	var denied *boterr.AuthorizationError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, []string{
		"use widgets [widgets.use]",
		"manage widgets [widgets.manage]",
	}, denied.Missing)
}

func TestGateAdmitsAfterGrant(t *testing.T) {
	engine := newTestEngine(t, &fakeOwners{})
	gate := engine.Gate()
	ctx := &router.Context{Ctx: context.Background(), GuildID: "g1", PrincipalID: "u1"}
	cmd := &gatedCommand{callsign: "use", caps: []Capability{capTest}}

	require.NoError(t, engine.Grant(context.Background(), "u1", capTest, "g1"))
	assert.NoError(t, gate(ctx, cmd))
}

func TestGateSkipsScheduledReplays(t *testing.T) {
	engine := newTestEngine(t, &fakeOwners{})
	gate := engine.Gate()

	ctx := &router.Context{Ctx: context.Background(), GuildID: "g1", Scheduled: true}
	cmd := &gatedCommand{callsign: "use", caps: []Capability{capTest}}
	assert.NoError(t, gate(ctx, cmd))
}

func TestGateIgnoresCommandsWithoutRequirements(t *testing.T) {
	engine := newTestEngine(t, &fakeOwners{})
	gate := engine.Gate()

	ctx := &router.Context{Ctx: context.Background(), GuildID: "g1", PrincipalID: "u1"}
	assert.NoError(t, gate(ctx, &plainCommand{}))
}

type plainCommand struct{}

func (plainCommand) Callsign() string                            { return "plain" }
func (plainCommand) Run(*router.Context, string, []string) error { return nil }
