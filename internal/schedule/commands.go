package schedule

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/artifactgaming/carlbot/internal/authority"
	"github.com/artifactgaming/carlbot/internal/boterr"
	"github.com/artifactgaming/carlbot/internal/router"
)

// CapUse guards every scheduling command.
var CapUse = authority.Capability{Name: "use schedules", Key: "schedules.use"}

const addUsage = "$>schedule add \"hour\" \"commandToInvoke\""

// Module exposes the schedule command set.
type Module struct {
	engine *Engine
}

// NewModule creates the module around an engine.
func NewModule(engine *Engine) *Module {
	return &Module{engine: engine}
}

func (m *Module) ID() string { return moduleID }

func (m *Module) RequiredCapabilities() []authority.Capability {
	return []authority.Capability{CapUse}
}

func (m *Module) Commands() []router.Command {
	return []router.Command{newScheduleSet(m.engine)}
}

type scheduleSet struct {
	*router.Set
}

func newScheduleSet(engine *Engine) *scheduleSet {
	return &scheduleSet{
		Set: router.NewSet("schedule",
			&addCommand{engine: engine},
			&getCommand{engine: engine},
			&stopCommand{engine: engine},
		),
	}
}

func (s *scheduleSet) RequiredCapabilities() []authority.Capability {
	return []authority.Capability{CapUse}
}

// addCommand persists a new replay entry: first token is the interval in
// hours, the rest is the command to replay.
type addCommand struct {
	engine *Engine
}

func (c *addCommand) Callsign() string { return "add" }

func (c *addCommand) RequiredCapabilities() []authority.Capability {
	return []authority.Capability{CapUse}
}

func (c *addCommand) Run(ctx *router.Context, raw string, tokens []string) error {
	if len(tokens) < 2 {
		return boterr.Validation("Wrong number of arguments.", addUsage)
	}
	if ctx.GuildID == "" {
		return boterr.Validation("This command can only be invoked in a server.", "")
	}

	hours, err := strconv.Atoi(tokens[0])
	if err != nil {
		return boterr.Validation("Argument is of wrong type.",
			addUsage+"\nWhere \"hour\" is a number.")
	}

	entry, err := c.engine.Add(ctx.Ctx, ctx.PrincipalID, ctx.GuildID, ctx.ChannelID,
		requote(tokens[1:]), hours)
	if err != nil {
		return err
	}
	return ctx.Reply(fmt.Sprintf("Scheduled `%s` every %d hour(s). Schedule id: %s",
		entry.Raw, entry.IntervalHours, entry.ID))
}

// getCommand lists the guild's schedules in insertion order.
type getCommand struct {
	engine *Engine
}

func (c *getCommand) Callsign() string { return "get" }

func (c *getCommand) Run(ctx *router.Context, raw string, tokens []string) error {
	entries, err := c.engine.List(ctx.Ctx, ctx.GuildID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return ctx.Reply("There are no scheduled commands in this server.")
	}

	var b strings.Builder
	for _, entry := range entries {
		fmt.Fprintf(&b, "%s  every %dh  %s\n", entry.ID, entry.IntervalHours, entry.Raw)
	}
	return ctx.Reply("Scheduled commands in this server:\n" + router.CodeBlock(b.String()))
}

// stopCommand cancels a schedule and deletes its row.
type stopCommand struct {
	engine *Engine
}

func (c *stopCommand) Callsign() string { return "stop" }

func (c *stopCommand) RequiredCapabilities() []authority.Capability {
	return []authority.Capability{CapUse}
}

func (c *stopCommand) Run(ctx *router.Context, raw string, tokens []string) error {
	if len(tokens) != 1 {
		return boterr.Validation("Wrong number of arguments.", "$>schedule stop \"schedule id\"")
	}
	if err := c.engine.Stop(ctx.Ctx, ctx.GuildID, tokens[0]); err != nil {
		return err
	}
	return ctx.Reply("Schedule stopped and removed.")
}

// requote reassembles tokens into a raw string that tokenizes back to the
// same sequence, restoring quotes around tokens containing whitespace.
func requote(tokens []string) string {
	parts := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if strings.ContainsAny(token, " \t") || token == "" {
			parts = append(parts, `"`+token+`"`)
			continue
		}
		parts = append(parts, token)
	}
	return strings.Join(parts, " ")
}
