// Package quotes stores short named quotes per guild.
package quotes

import (
	"context"

	"github.com/artifactgaming/carlbot/internal/authority"
	"github.com/artifactgaming/carlbot/internal/boterr"
	"github.com/artifactgaming/carlbot/internal/persistence"
	"github.com/artifactgaming/carlbot/internal/router"
)

const (
	moduleID    = "quotes"
	tableSuffix = "quotes"

	colOwner     = "owner"
	colOwnerName = "owner_name"
	colKey       = "key"
	colContent   = "quote"
)

var (
	// CapUse guards every quote command.
	CapUse = authority.Capability{Name: "use quotes", Key: "quotes.use"}
	// CapAdmin lets a principal manage quotes they do not own.
	CapAdmin = authority.Capability{Name: "quote admin", Key: "quotes.admin"}
)

var tableColumns = []persistence.Column{
	{Name: colOwner, Type: persistence.Text},
	{Name: colOwnerName, Type: persistence.Text},
	{Name: colKey, Type: persistence.Text},
	{Name: colContent, Type: persistence.Text},
}

// Quote is one stored quote.
type Quote struct {
	OwnerID   string `json:"owner"`
	OwnerName string `json:"owner_name"`
	Key       string `json:"key"`
	Content   string `json:"quote"`
}

// Module wires quote storage to the command set.
type Module struct {
	store     *persistence.Persistence
	authority *authority.Engine
}

// NewModule creates the module. Both collaborators are required.
func NewModule(store *persistence.Persistence, auth *authority.Engine) (*Module, error) {
	if store == nil {
		return nil, boterr.Configuration("quotes: persistence is not loaded")
	}
	if auth == nil {
		return nil, boterr.Configuration("quotes: authority engine is not loaded")
	}
	return &Module{store: store, authority: auth}, nil
}

func (m *Module) ID() string { return moduleID }

func (m *Module) RequiredCapabilities() []authority.Capability {
	return []authority.Capability{CapAdmin, CapUse}
}

func (m *Module) Commands() []router.Command {
	return []router.Command{newQuoteSet(m)}
}

func (m *Module) table(ctx context.Context, guildID string) (*persistence.Table, error) {
	return m.store.GuildTable(ctx, guildID, moduleID, tableSuffix, tableColumns)
}

// fetch returns the quote stored under key, or nil.
func (m *Module) fetch(ctx context.Context, guildID, key string) (*Quote, error) {
	table, err := m.table(ctx, guildID)
	if err != nil {
		return nil, err
	}
	rows, err := table.Select(ctx, persistence.Where(colKey, key))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	row, err := rows.Row()
	if err != nil {
		return nil, err
	}
	return &Quote{
		OwnerID:   row.String(colOwner),
		OwnerName: row.String(colOwnerName),
		Key:       row.String(colKey),
		Content:   row.String(colContent),
	}, nil
}

// all returns every quote of the guild in insertion order.
func (m *Module) all(ctx context.Context, guildID string) ([]Quote, error) {
	table, err := m.table(ctx, guildID)
	if err != nil {
		return nil, err
	}
	rows, err := table.Select(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Quote
	for rows.Next() {
		row, err := rows.Row()
		if err != nil {
			return nil, err
		}
		out = append(out, Quote{
			OwnerID:   row.String(colOwner),
			OwnerName: row.String(colOwnerName),
			Key:       row.String(colKey),
			Content:   row.String(colContent),
		})
	}
	return out, rows.Err()
}

func (m *Module) add(ctx context.Context, guildID string, quote Quote) error {
	table, err := m.table(ctx, guildID)
	if err != nil {
		return err
	}
	return table.Insert(ctx, persistence.Values{
		colOwner:     quote.OwnerID,
		colOwnerName: quote.OwnerName,
		colKey:       quote.Key,
		colContent:   quote.Content,
	})
}

// update replaces the row stored under key with quote's fields.
func (m *Module) update(ctx context.Context, guildID, key string, quote Quote) error {
	table, err := m.table(ctx, guildID)
	if err != nil {
		return err
	}
	return table.Update(ctx, persistence.Values{
		colOwner:     quote.OwnerID,
		colOwnerName: quote.OwnerName,
		colKey:       quote.Key,
		colContent:   quote.Content,
	}, persistence.Where(colKey, key))
}

func (m *Module) remove(ctx context.Context, guildID, key string) error {
	table, err := m.table(ctx, guildID)
	if err != nil {
		return err
	}
	return table.Delete(ctx, persistence.Where(colKey, key))
}

// ownsQuote reports whether the principal owns the quote or holds the
// quote admin capability.
func (m *Module) ownsQuote(ctx *router.Context, quote *Quote) (bool, error) {
	if ctx.PrincipalID != "" && ctx.PrincipalID == quote.OwnerID {
		return true, nil
	}
	return m.authority.HasCapability(ctx.Ctx, ctx.PrincipalID, ctx.GuildID, CapAdmin, false)
}
