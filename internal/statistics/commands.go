package statistics

import (
	"fmt"
	"strings"

	"github.com/artifactgaming/carlbot/internal/authority"
	"github.com/artifactgaming/carlbot/internal/router"
)

func newStatsSet(m *Module) *statsSet {
	return &statsSet{router.NewSet("stats",
		&toggleCommand{m},
		&channelsCommand{m},
	)}
}

type statsSet struct{ *router.Set }

func (s *statsSet) RequiredCapabilities() []authority.Capability {
	return []authority.Capability{CapManage}
}

type toggleCommand struct{ m *Module }

func (c *toggleCommand) Callsign() string { return "toggle" }

func (c *toggleCommand) Run(ctx *router.Context, raw string, tokens []string) error {
	enabled, err := c.m.Toggle(ctx.Ctx, ctx.GuildID)
	if err != nil {
		return err
	}
	if enabled {
		return ctx.Reply("Statistics collection is now enabled.")
	}
	return ctx.Reply("Statistics collection is now disabled.")
}

type channelsCommand struct{ m *Module }

func (c *channelsCommand) Callsign() string { return "channels" }

func (c *channelsCommand) Run(ctx *router.Context, raw string, tokens []string) error {
	weeks, err := c.m.CurrentWeek(ctx.Ctx, ctx.GuildID)
	if err != nil {
		return err
	}
	if len(weeks) == 0 {
		return ctx.Reply("No messages have been counted this week.")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Week of %s\n", weeks[0].WeekStart)
	for _, w := range weeks {
		name := w.ChannelName
		if name == "" {
			name = w.ChannelID
		}
		fmt.Fprintf(&b, "#%s  %d messages, %d with images\n", name, w.Messages, w.Images)
	}
	return ctx.Reply("Channel activity this week:\n" + router.CodeBlock(b.String()))
}
