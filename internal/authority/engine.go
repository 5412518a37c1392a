package authority

import (
	"context"

	"github.com/artifactgaming/carlbot/internal/boterr"
	"github.com/artifactgaming/carlbot/internal/persistence"
	"github.com/artifactgaming/carlbot/internal/router"
)

const (
	moduleID      = "authority"
	tableSuffix   = "bindings"
	principalCol  = "principal_id"
	capManageName = "manage authority"
	capManageKey  = "authority.manage"
)

// CapManage guards the authority management commands themselves.
var CapManage = Capability{Name: capManageName, Key: capManageKey}

// OwnerChecker answers whether a principal owns a guild. Implemented by
// the platform layer.
type OwnerChecker interface {
	IsOwner(principalID, guildID string) (bool, error)
}

// Engine evaluates and records capability bindings per guild.
type Engine struct {
	store  *persistence.Persistence
	reg    *Registry
	owners OwnerChecker
}

// NewEngine wires the engine. The capability registry arrives later via
// SetRegistry, because building it needs the module list and some modules
// need the engine.
func NewEngine(store *persistence.Persistence, owners OwnerChecker) (*Engine, error) {
	if store == nil {
		return nil, boterr.Configuration("authority engine: persistence is not loaded")
	}
	if owners == nil {
		return nil, boterr.Configuration("authority engine: owner checker is not wired")
	}
	return &Engine{store: store, owners: owners}, nil
}

// SetRegistry installs the capability registry. Must happen before the
// first dispatch.
func (e *Engine) SetRegistry(reg *Registry) error {
	if reg == nil {
		return boterr.Configuration("authority engine: capability registry is not built")
	}
	e.reg = reg
	return nil
}

// Registry returns the installed capability registry.
func (e *Engine) Registry() *Registry { return e.reg }

// table materializes the guild's permission matrix: one principal id
// column plus one boolean column per registered capability.
func (e *Engine) table(ctx context.Context, guildID string) (*persistence.Table, error) {
	if e.reg == nil {
		return nil, boterr.Configuration("authority engine: capability registry is not built")
	}
	columns := []persistence.Column{{Name: principalCol, Type: persistence.Text}}
	for _, capability := range e.reg.Capabilities() {
		columns = append(columns, persistence.Column{Name: capability.Key, Type: persistence.Bool})
	}
	return e.store.GuildTable(ctx, guildID, moduleID, tableSuffix, columns)
}

// HasCapability reports whether the principal holds the capability in the guild. The
// guild owner passes unconditionally unless bypassOwnerCheck is set.
func (e *Engine) HasCapability(ctx context.Context, principalID, guildID string, capability Capability, bypassOwnerCheck bool) (bool, error) {
	if !bypassOwnerCheck {
		owner, err := e.owners.IsOwner(principalID, guildID)
		if err != nil {
			return false, boterr.Storage("owner lookup", err)
		}
		if owner {
			return true, nil
		}
	}
	return e.hasRaw(ctx, principalID, guildID, capability)
}

// HasRoleCapability is the same row lookup keyed by role id. Roles never
// get the owner bypass.
func (e *Engine) HasRoleCapability(ctx context.Context, roleID, guildID string, capability Capability) (bool, error) {
	return e.hasRaw(ctx, roleID, guildID, capability)
}

// hasRaw grants if any matrix row for the id has the capability cell set.
// Grants are append-only inserts, so duplicates are expected.
func (e *Engine) hasRaw(ctx context.Context, id, guildID string, capability Capability) (bool, error) {
	table, err := e.table(ctx, guildID)
	if err != nil {
		return false, err
	}

	rows, err := table.Select(ctx, persistence.Where(principalCol, id))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		row, err := rows.Row()
		if err != nil {
			return false, err
		}
		if row.Bool(capability.Key) {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Grant inserts a fresh row binding the capability to the principal. It does not
// merge with existing rows for the same principal.
func (e *Engine) Grant(ctx context.Context, principalID string, capability Capability, guildID string) error {
	table, err := e.table(ctx, guildID)
	if err != nil {
		return err
	}
	return table.Insert(ctx, persistence.Values{
		principalCol:   principalID,
		capability.Key: true,
	})
}

// Revoke clears the capability cell in every row the principal has.
func (e *Engine) Revoke(ctx context.Context, principalID string, capability Capability, guildID string) error {
	table, err := e.table(ctx, guildID)
	if err != nil {
		return err
	}
	return table.Update(ctx, persistence.Values{capability.Key: false},
		persistence.Where(principalCol, principalID))
}

// Gate returns the router's pre-dispatch gate. Scheduled replays pass
// through: their schedulability was checked when the schedule was added,
// and stored entries are not re-authorized at fire time.
func (e *Engine) Gate() router.Gate {
	return func(ctx *router.Context, cmd router.Command) error {
		if ctx.Scheduled {
			return nil
		}

		cr, ok := cmd.(CapabilityRequiring)
		if !ok {
			return nil
		}
		required := cr.RequiredCapabilities()
		if len(required) == 0 {
			return nil
		}

		var missing []string
		for _, capability := range required {
			has, err := e.HasCapability(ctx.Ctx, ctx.PrincipalID, ctx.GuildID, capability, false)
			if err != nil {
				return err
			}
			if !has {
				missing = append(missing, capability.Name+" ["+capability.Key+"]")
			}
		}
		if len(missing) > 0 {
			return &boterr.AuthorizationError{Missing: missing}
		}
		return nil
	}
}
