package authority

import (
	"strings"

	"github.com/artifactgaming/carlbot/internal/boterr"
	"github.com/artifactgaming/carlbot/internal/router"
)

// ManagementModule exposes the authority manipulation commands.
type ManagementModule struct {
	engine *Engine
}

// NewManagementModule creates the module around an engine.
func NewManagementModule(engine *Engine) *ManagementModule {
	return &ManagementModule{engine: engine}
}

func (m *ManagementModule) ID() string { return moduleID }

func (m *ManagementModule) RequiredCapabilities() []Capability {
	return []Capability{CapManage}
}

func (m *ManagementModule) Commands() []router.Command {
	return []router.Command{newManageSet(m.engine)}
}

// manageSet groups the authority commands under the "authority" callsign.
type manageSet struct {
	*router.Set
}

func newManageSet(engine *Engine) *manageSet {
	return &manageSet{
		Set: router.NewSet("authority",
			&listCommand{engine: engine},
			&addCommand{engine: engine},
			&removeCommand{engine: engine},
		),
	}
}

func (s *manageSet) RequiredCapabilities() []Capability {
	return []Capability{CapManage}
}

// listCommand lists assignable capabilities, or resolves a principal token
// to its id when one is given.
type listCommand struct {
	engine *Engine
}

func (c *listCommand) Callsign() string { return "list" }

func (c *listCommand) RequiredCapabilities() []Capability {
	return []Capability{CapManage}
}

func (c *listCommand) Run(ctx *router.Context, raw string, tokens []string) error {
	if len(tokens) == 0 {
		var b strings.Builder
		for _, capability := range c.engine.reg.Capabilities() {
			b.WriteString(capability.Name + " [" + capability.Key + "]\n")
		}
		return ctx.Reply("Authorities you can assign to users and roles:\n" + router.CodeBlock(b.String()))
	}

	id, ok := ctx.Directory.ResolveMemberOrRole(ctx, tokens[0])
	if !ok {
		return boterr.NotFound("Could not find member or role.")
	}
	return ctx.Reply("Discord ID: " + id)
}

// addCommand grants a capability to a member or role.
type addCommand struct {
	engine *Engine
}

func (c *addCommand) Callsign() string { return "add" }

func (c *addCommand) RequiredCapabilities() []Capability {
	return []Capability{CapManage}
}

func (c *addCommand) Run(ctx *router.Context, raw string, tokens []string) error {
	if len(tokens) != 2 {
		return boterr.Validation("Wrong number of arguments given.",
			"$>authority add <member or role> <authority name>")
	}

	id, ok := ctx.Directory.ResolveMemberOrRole(ctx, tokens[0])
	if !ok {
		return boterr.NotFound("Could not find member or role.")
	}

	capability, ok := c.engine.reg.ByName(tokens[1])
	if !ok {
		return boterr.NotFound("Could not find requested authority.")
	}

	if err := c.engine.Grant(ctx.Ctx, id, capability, ctx.GuildID); err != nil {
		return err
	}
	return ctx.Reply("Authority added.")
}

// removeCommand clears a capability from a member or role.
type removeCommand struct {
	engine *Engine
}

func (c *removeCommand) Callsign() string { return "remove" }

func (c *removeCommand) RequiredCapabilities() []Capability {
	return []Capability{CapManage}
}

func (c *removeCommand) Run(ctx *router.Context, raw string, tokens []string) error {
	if len(tokens) != 2 {
		return boterr.Validation("Wrong number of arguments given.",
			"$>authority remove <member or role> <authority name>")
	}

	id, ok := ctx.Directory.ResolveMemberOrRole(ctx, tokens[0])
	if !ok {
		return boterr.NotFound("Could not find member or role.")
	}

	capability, ok := c.engine.reg.ByName(tokens[1])
	if !ok {
		return boterr.NotFound("Could not find requested authority.")
	}

	if err := c.engine.Revoke(ctx.Ctx, id, capability, ctx.GuildID); err != nil {
		return err
	}
	return ctx.Reply("Authority removed.")
}
