// Package schedule persists recurring command replays and drives them
// through the router without a live requester.
package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/artifactgaming/carlbot/internal/boterr"
	"github.com/artifactgaming/carlbot/internal/persistence"
	"github.com/artifactgaming/carlbot/internal/router"
	"github.com/artifactgaming/carlbot/pkg/jobmgr"
)

const (
	moduleID    = "schedule"
	tableSuffix = "schedules"

	colID       = "id"
	colOwner    = "owner_id"
	colGuild    = "guild_id"
	colChannel  = "channel_id"
	colRaw      = "command_raw"
	colInterval = "interval_hours"
)

var tableColumns = []persistence.Column{
	{Name: colID, Type: persistence.Text},
	{Name: colOwner, Type: persistence.Text},
	{Name: colGuild, Type: persistence.Text},
	{Name: colChannel, Type: persistence.Text},
	{Name: colRaw, Type: persistence.Text},
	{Name: colInterval, Type: persistence.Integer},
}

// Entry is one persisted replay instruction.
type Entry struct {
	ID            string
	PrincipalID   string
	GuildID       string
	ChannelID     string
	Raw           string
	IntervalHours int
}

// ContextFactory builds the dispatch context a replay runs in. The
// platform layer supplies the responder and directory for the target
// guild and channel.
type ContextFactory func(guildID, channelID string) *router.Context

// commandGroup matches command sets during schedulability resolution.
type commandGroup interface {
	Lookup(callsign string) (router.Command, bool)
}

// Engine owns one recurring job per schedule entry, keyed by entry id.
type Engine struct {
	store      *persistence.Persistence
	top        *router.Router
	newContext ContextFactory
	jobs       *jobmgr.Manager

	// unit is the length of one interval hour. Tests shrink it.
	unit time.Duration
}

// NewEngine wires the engine. All collaborators are required.
func NewEngine(store *persistence.Persistence, top *router.Router, newContext ContextFactory) (*Engine, error) {
	if store == nil {
		return nil, boterr.Configuration("schedule engine: persistence is not loaded")
	}
	if top == nil {
		return nil, boterr.Configuration("schedule engine: router is not wired")
	}
	if newContext == nil {
		return nil, boterr.Configuration("schedule engine: context factory is not wired")
	}
	e := &Engine{
		store:      store,
		top:        top,
		newContext: newContext,
		unit:       time.Hour,
	}
	e.jobs = jobmgr.NewManager(func(msg string) {
		log.Debug().Str("event", msg).Msg("schedule job")
	})
	return e, nil
}

func (e *Engine) table(ctx context.Context, guildID string) (*persistence.Table, error) {
	return e.store.GuildTable(ctx, guildID, moduleID, tableSuffix, tableColumns)
}

// Add validates, persists and starts one schedule. The raw command's
// callsign path must resolve to a schedulable node; the first fire happens
// one full interval after return.
func (e *Engine) Add(ctx context.Context, principalID, guildID, channelID, rawCommand string, intervalHours int) (*Entry, error) {
	if intervalHours <= 0 {
		return nil, boterr.Validation("Argument is of wrong type.",
			"$>schedule add \"hour\" \"commandToInvoke\"\nWhere \"hour\" is a positive number.")
	}
	if err := e.resolveSchedulable(rawCommand); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:            uuid.NewString(),
		PrincipalID:   principalID,
		GuildID:       guildID,
		ChannelID:     channelID,
		Raw:           rawCommand,
		IntervalHours: intervalHours,
	}

	table, err := e.table(ctx, guildID)
	if err != nil {
		return nil, err
	}
	err = table.Insert(ctx, persistence.Values{
		colID:       entry.ID,
		colOwner:    entry.PrincipalID,
		colGuild:    entry.GuildID,
		colChannel:  entry.ChannelID,
		colRaw:      entry.Raw,
		colInterval: entry.IntervalHours,
	})
	if err != nil {
		return nil, err
	}

	if err := e.start(entry); err != nil {
		return nil, boterr.Storage("start schedule "+entry.ID, err)
	}
	return entry, nil
}

// resolveSchedulable walks the raw command's callsign path through the
// registered tree and checks the terminal node is marked schedulable.
func (e *Engine) resolveSchedulable(rawCommand string) error {
	tokens := router.Tokenize(rawCommand)
	if len(tokens) == 0 {
		return boterr.Validation("Wrong number of arguments.",
			"$>schedule add \"hour\" \"commandToInvoke\"")
	}

	cmd, ok := e.top.Lookup(tokens[0])
	if !ok {
		return boterr.NotFound("Either the command could not be scheduled, or the command could not be found.")
	}

	i := 1
	for {
		group, isGroup := cmd.(commandGroup)
		if !isGroup {
			break
		}
		if i >= len(tokens) {
			return boterr.Validation("Modules cannot be scheduled.", "")
		}
		child, found := group.Lookup(tokens[i])
		if !found {
			return boterr.NotFound("Either the command could not be scheduled, or the command could not be found.")
		}
		cmd = child
		i++
	}

	if sch, ok := cmd.(router.Schedulable); !ok || !sch.Schedulable() {
		return boterr.NotFound("Either the command could not be scheduled, or the command could not be found.")
	}
	return nil
}

// start registers the recurring job for an entry.
func (e *Engine) start(entry *Entry) error {
	every := time.Duration(entry.IntervalHours) * e.unit
	replay := *entry
	return e.jobs.StartPeriodic(entry.ID, every, func(jobCtx context.Context) error {
		e.fire(jobCtx, &replay)
		return nil
	})
}

// fire replays the stored raw string through the router in the target
// channel. Execution errors are reported into that channel by the
// dispatch path itself.
func (e *Engine) fire(ctx context.Context, entry *Entry) {
	log.Info().Str("schedule", entry.ID).Str("guild", entry.GuildID).
		Str("raw", entry.Raw).Msg("replaying scheduled command")

	rctx := e.newContext(entry.GuildID, entry.ChannelID)
	rctx.Ctx = ctx
	rctx.Scheduled = true
	e.top.Dispatch(rctx, entry.Raw)
}

// List returns a guild's entries in insertion order.
func (e *Engine) List(ctx context.Context, guildID string) ([]Entry, error) {
	table, err := e.table(ctx, guildID)
	if err != nil {
		return nil, err
	}
	rows, err := table.Select(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		row, err := rows.Row()
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			ID:            row.String(colID),
			PrincipalID:   row.String(colOwner),
			GuildID:       row.String(colGuild),
			ChannelID:     row.String(colChannel),
			Raw:           row.String(colRaw),
			IntervalHours: int(row.Int(colInterval)),
		})
	}
	return entries, rows.Err()
}

// Stop cancels the entry's timer and removes the persisted row.
func (e *Engine) Stop(ctx context.Context, guildID, id string) error {
	table, err := e.table(ctx, guildID)
	if err != nil {
		return err
	}

	rows, err := table.Select(ctx, persistence.Where(colID, id))
	if err != nil {
		return err
	}
	found := rows.Next()
	closeErr := rows.Close()
	if !found {
		if closeErr != nil {
			return boterr.Storage("stop schedule "+id, closeErr)
		}
		return boterr.NotFound("Could not find a schedule by that id.")
	}

	// The job may not be running, e.g. after a restart without restore.
	if stopErr := e.jobs.Stop(id); stopErr != nil {
		log.Warn().Str("schedule", id).Err(stopErr).Msg("schedule timer was not running")
	}
	return table.Delete(ctx, persistence.Where(colID, id))
}

// StopAll cancels every running timer. Persisted rows stay.
func (e *Engine) StopAll() { e.jobs.StopAll() }

// Restore starts timers for every persisted entry of a guild. Entries
// whose timer is already running are left alone.
func (e *Engine) Restore(ctx context.Context, guildID string) error {
	entries, err := e.List(ctx, guildID)
	if err != nil {
		return err
	}
	for i := range entries {
		entry := entries[i]
		if e.jobs.Running(entry.ID) {
			continue
		}
		if err := e.start(&entry); err != nil {
			return boterr.Storage("restore schedule "+entry.ID, err)
		}
		log.Info().Str("schedule", entry.ID).Str("guild", guildID).
			Str("raw", entry.Raw).Msg("restored schedule")
	}
	return nil
}
