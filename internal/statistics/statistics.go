// Package statistics counts guild messages per channel, grouped by week.
package statistics

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/artifactgaming/carlbot/internal/authority"
	"github.com/artifactgaming/carlbot/internal/boterr"
	"github.com/artifactgaming/carlbot/internal/persistence"
	"github.com/artifactgaming/carlbot/internal/router"
	"github.com/artifactgaming/carlbot/pkg/util"
)

const (
	moduleID      = "statistics"
	settingsTable = "settings"
	statsTable    = "channel_stats"

	colEnabled     = "enabled"
	colWeekStart   = "week_start"
	colChannelID   = "channel_id"
	colChannelName = "channel_name"
	colMessages    = "messages_sent"
	colImages      = "messages_with_image"

	weekTemplate = "MM/DD/YYYY"
)

// CapManage guards the stats command set.
var CapManage = authority.Capability{Name: "manage statistics", Key: "statistics.manage"}

var settingsColumns = []persistence.Column{
	{Name: colEnabled, Type: persistence.Bool},
}

var statsColumns = []persistence.Column{
	{Name: colWeekStart, Type: persistence.Text},
	{Name: colChannelID, Type: persistence.Text},
	{Name: colChannelName, Type: persistence.Text},
	{Name: colMessages, Type: persistence.Integer},
	{Name: colImages, Type: persistence.Integer},
}

// ChannelWeek is one channel's counters for one week.
type ChannelWeek struct {
	WeekStart   string
	ChannelID   string
	ChannelName string
	Messages    int64
	Images      int64
}

// Module collects message counters and exposes the stats commands.
type Module struct {
	store *persistence.Persistence
	// now is swapped out by tests to pin the week.
	now func() time.Time
}

func NewModule(store *persistence.Persistence) (*Module, error) {
	if store == nil {
		return nil, boterr.Configuration("statistics: persistence is not loaded")
	}
	return &Module{store: store, now: time.Now}, nil
}

func (m *Module) ID() string { return moduleID }

func (m *Module) RequiredCapabilities() []authority.Capability {
	return []authority.Capability{CapManage}
}

func (m *Module) Commands() []router.Command {
	return []router.Command{newStatsSet(m)}
}

// OnMessage records one message against the channel's current week. It is
// called for every guild message, so failures are logged and swallowed.
func (m *Module) OnMessage(ctx *router.Context, content string, hasImage bool) {
	enabled, err := m.Enabled(ctx.Ctx, ctx.GuildID)
	if err != nil {
		log.Error().Err(err).Str("guild", ctx.GuildID).Msg("statistics: settings lookup failed")
		return
	}
	if !enabled {
		return
	}

	name, _ := ctx.Directory.ChannelName(ctx, ctx.ChannelID)
	if err := m.record(ctx.Ctx, ctx.GuildID, ctx.ChannelID, name, hasImage); err != nil {
		log.Error().Err(err).Str("guild", ctx.GuildID).Str("channel", ctx.ChannelID).
			Msg("statistics: counter update failed")
	}
}

// Enabled reports whether the guild opted in to collection. Guilds with no
// settings row are disabled.
func (m *Module) Enabled(ctx context.Context, guildID string) (bool, error) {
	table, err := m.store.GuildTable(ctx, guildID, moduleID, settingsTable, settingsColumns)
	if err != nil {
		return false, err
	}
	rows, err := table.Select(ctx)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return false, rows.Err()
	}
	row, err := rows.Row()
	if err != nil {
		return false, err
	}
	return row.Bool(colEnabled), nil
}

// Toggle flips collection on or off and returns the new state.
func (m *Module) Toggle(ctx context.Context, guildID string) (bool, error) {
	enabled, err := m.Enabled(ctx, guildID)
	if err != nil {
		return false, err
	}
	table, err := m.store.GuildTable(ctx, guildID, moduleID, settingsTable, settingsColumns)
	if err != nil {
		return false, err
	}
	if err := table.Delete(ctx); err != nil {
		return false, err
	}
	if err := table.Insert(ctx, persistence.Values{colEnabled: !enabled}); err != nil {
		return false, err
	}
	return !enabled, nil
}

func (m *Module) statsFor(ctx context.Context, guildID string) (*persistence.Table, error) {
	return m.store.GuildTable(ctx, guildID, moduleID, statsTable, statsColumns)
}

func (m *Module) record(ctx context.Context, guildID, channelID, channelName string, hasImage bool) error {
	table, err := m.statsFor(ctx, guildID)
	if err != nil {
		return err
	}
	week := m.currentWeek()

	deltas := map[string]int64{colMessages: 1}
	if hasImage {
		deltas[colImages] = 1
	}
	touched, err := table.Increment(ctx, persistence.Values{colChannelName: channelName}, deltas,
		persistence.Where(colWeekStart, week), persistence.Where(colChannelID, channelID))
	if err != nil {
		return err
	}
	if touched > 0 {
		return nil
	}

	entry := persistence.Values{
		colWeekStart:   week,
		colChannelID:   channelID,
		colChannelName: channelName,
		colMessages:    1,
		colImages:      0,
	}
	if hasImage {
		entry[colImages] = 1
	}
	return table.Insert(ctx, entry)
}

// currentWeek renders the Monday of the week containing now.
func (m *Module) currentWeek() string {
	return util.FormatDateTpl(util.WeekStart(m.now()).UnixMilli(), weekTemplate)
}

// CurrentWeek returns every channel's counters for the week containing now.
func (m *Module) CurrentWeek(ctx context.Context, guildID string) ([]ChannelWeek, error) {
	table, err := m.statsFor(ctx, guildID)
	if err != nil {
		return nil, err
	}
	week := m.currentWeek()
	rows, err := table.Select(ctx, persistence.Where(colWeekStart, week))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChannelWeek
	for rows.Next() {
		row, err := rows.Row()
		if err != nil {
			return nil, err
		}
		out = append(out, *rowToWeek(row))
	}
	return out, rows.Err()
}

func rowToWeek(row persistence.Row) *ChannelWeek {
	return &ChannelWeek{
		WeekStart:   row.String(colWeekStart),
		ChannelID:   row.String(colChannelID),
		ChannelName: row.String(colChannelName),
		Messages:    row.Int(colMessages),
		Images:      row.Int(colImages),
	}
}
