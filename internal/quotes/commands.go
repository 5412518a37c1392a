package quotes

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"github.com/artifactgaming/carlbot/internal/authority"
	"github.com/artifactgaming/carlbot/internal/boterr"
	"github.com/artifactgaming/carlbot/internal/router"
)

const notFoundMsg = "Could not find a quote by that key."
const notOwnerMsg = "You must own this quote or hold the quote admin authority to do that."

func newQuoteSet(m *Module) *quoteSet {
	return &quoteSet{router.NewSet("quote",
		&addCommand{m},
		&getCommand{m},
		&removeCommand{m},
		&removeAllCommand{m},
		&editCommand{m},
		&renameCommand{m},
		&giveawayCommand{m},
		&randomCommand{m},
		&infoCommand{m},
		&listCommand{m},
		&exportCommand{m},
	)}
}

type quoteSet struct{ *router.Set }

func (s *quoteSet) RequiredCapabilities() []authority.Capability {
	return []authority.Capability{CapUse}
}

type addCommand struct{ m *Module }

func (c *addCommand) Callsign() string { return "add" }

func (c *addCommand) Run(ctx *router.Context, raw string, tokens []string) error {
	if len(tokens) < 2 {
		return boterr.Validation("A quote needs a key and the quote text.", "quote add <key> <quote>")
	}
	key, content := tokens[0], strings.Join(tokens[1:], " ")
	existing, err := c.m.fetch(ctx.Ctx, ctx.GuildID, key)
	if err != nil {
		return err
	}
	if existing != nil {
		return ctx.Reply("A quote with that key already exists.")
	}
	name, _ := ctx.Directory.MemberName(ctx, ctx.PrincipalID)
	err = c.m.add(ctx.Ctx, ctx.GuildID, Quote{
		OwnerID:   ctx.PrincipalID,
		OwnerName: name,
		Key:       key,
		Content:   content,
	})
	if err != nil {
		return err
	}
	return ctx.Reply("Quote added to database.")
}

type getCommand struct{ m *Module }

func (c *getCommand) Callsign() string { return "get" }

// Schedulable lets the quote be replayed on a schedule.
func (c *getCommand) Schedulable() bool { return true }

func (c *getCommand) Run(ctx *router.Context, raw string, tokens []string) error {
	if len(tokens) < 1 {
		return boterr.Validation("You need to provide a key to find the quote you want.", "quote get <key>")
	}
	quote, err := c.m.fetch(ctx.Ctx, ctx.GuildID, tokens[0])
	if err != nil {
		return err
	}
	if quote == nil {
		return boterr.NotFound(notFoundMsg)
	}
	return ctx.Reply(fmt.Sprintf("[%s]", quote.Content))
}

type removeCommand struct{ m *Module }

func (c *removeCommand) Callsign() string { return "remove" }

func (c *removeCommand) Run(ctx *router.Context, raw string, tokens []string) error {
	if len(tokens) < 1 {
		return boterr.Validation("Say which quote to remove.", "quote remove <key>")
	}
	quote, err := c.m.fetch(ctx.Ctx, ctx.GuildID, tokens[0])
	if err != nil {
		return err
	}
	if quote == nil {
		return boterr.NotFound(notFoundMsg)
	}
	owns, err := c.m.ownsQuote(ctx, quote)
	if err != nil {
		return err
	}
	if !owns {
		return ctx.Reply(notOwnerMsg)
	}
	if err := c.m.remove(ctx.Ctx, ctx.GuildID, quote.Key); err != nil {
		return err
	}
	return ctx.Reply("Quote deleted.")
}

// removeAllCommand is a placeholder for bulk deletion.
// TODO: implement once there is a confirmation flow for destructive commands.
type removeAllCommand struct{ m *Module }

func (c *removeAllCommand) Callsign() string { return "remove_all" }

func (c *removeAllCommand) Run(ctx *router.Context, raw string, tokens []string) error {
	return ctx.Reply("Removing every quote at once is not supported yet.")
}

type editCommand struct{ m *Module }

func (c *editCommand) Callsign() string { return "edit" }

func (c *editCommand) Run(ctx *router.Context, raw string, tokens []string) error {
	if len(tokens) < 2 {
		return boterr.Validation("Editing a quote needs its key and the new text.", "quote edit <key> <quote>")
	}
	quote, err := c.m.fetch(ctx.Ctx, ctx.GuildID, tokens[0])
	if err != nil {
		return err
	}
	if quote == nil {
		return boterr.NotFound(notFoundMsg)
	}
	owns, err := c.m.ownsQuote(ctx, quote)
	if err != nil {
		return err
	}
	if !owns {
		return ctx.Reply(notOwnerMsg)
	}
	quote.Content = strings.Join(tokens[1:], " ")
	if err := c.m.update(ctx.Ctx, ctx.GuildID, quote.Key, *quote); err != nil {
		return err
	}
	return ctx.Reply("Quote updated.")
}

type renameCommand struct{ m *Module }

func (c *renameCommand) Callsign() string { return "rename" }

func (c *renameCommand) Run(ctx *router.Context, raw string, tokens []string) error {
	if len(tokens) < 2 {
		return boterr.Validation("Renaming a quote needs the old and the new key.", "quote rename <key> <new key>")
	}
	oldKey, newKey := tokens[0], tokens[1]
	taken, err := c.m.fetch(ctx.Ctx, ctx.GuildID, newKey)
	if err != nil {
		return err
	}
	if taken != nil {
		return ctx.Reply("A quote with the new key already exists.")
	}
	quote, err := c.m.fetch(ctx.Ctx, ctx.GuildID, oldKey)
	if err != nil {
		return err
	}
	if quote == nil {
		return boterr.NotFound(notFoundMsg)
	}
	owns, err := c.m.ownsQuote(ctx, quote)
	if err != nil {
		return err
	}
	if !owns {
		return ctx.Reply(notOwnerMsg)
	}
	quote.Key = newKey
	if err := c.m.update(ctx.Ctx, ctx.GuildID, oldKey, *quote); err != nil {
		return err
	}
	return ctx.Reply("Quote renamed.")
}

type giveawayCommand struct{ m *Module }

func (c *giveawayCommand) Callsign() string { return "giveaway" }

func (c *giveawayCommand) Run(ctx *router.Context, raw string, tokens []string) error {
	if len(tokens) < 2 {
		return boterr.Validation("Giving a quote away needs its key and the new owner.", "quote giveaway <key> <member>")
	}
	quote, err := c.m.fetch(ctx.Ctx, ctx.GuildID, tokens[0])
	if err != nil {
		return err
	}
	if quote == nil {
		return boterr.NotFound(notFoundMsg)
	}
	owns, err := c.m.ownsQuote(ctx, quote)
	if err != nil {
		return err
	}
	if !owns {
		return ctx.Reply(notOwnerMsg)
	}
	memberID, ok := ctx.Directory.ResolveMember(ctx, tokens[1])
	if !ok {
		return boterr.NotFound("Could not find that member.")
	}
	quote.OwnerID = memberID
	if name, ok := ctx.Directory.MemberName(ctx, memberID); ok {
		quote.OwnerName = name
	}
	if err := c.m.update(ctx.Ctx, ctx.GuildID, quote.Key, *quote); err != nil {
		return err
	}
	return ctx.Reply("Quote owner updated.")
}

type randomCommand struct{ m *Module }

func (c *randomCommand) Callsign() string { return "random" }

func (c *randomCommand) Run(ctx *router.Context, raw string, tokens []string) error {
	quotes, err := c.m.all(ctx.Ctx, ctx.GuildID)
	if err != nil {
		return err
	}
	if len(quotes) == 0 {
		return ctx.Reply("This server doesn't have any quotes.")
	}
	pick := quotes[rand.Intn(len(quotes))]
	return ctx.Reply(fmt.Sprintf("[%s]", pick.Content))
}

type infoCommand struct{ m *Module }

func (c *infoCommand) Callsign() string { return "info" }

func (c *infoCommand) Run(ctx *router.Context, raw string, tokens []string) error {
	if len(tokens) < 1 {
		return boterr.Validation("Say which quote you want to know about.", "quote info <key>")
	}
	quote, err := c.m.fetch(ctx.Ctx, ctx.GuildID, tokens[0])
	if err != nil {
		return err
	}
	if quote == nil {
		return boterr.NotFound(notFoundMsg)
	}
	// The stored owner name drifts when members rename themselves;
	// refresh it while the member is still around.
	if name, ok := ctx.Directory.MemberName(ctx, quote.OwnerID); ok && name != quote.OwnerName {
		quote.OwnerName = name
		if err := c.m.update(ctx.Ctx, ctx.GuildID, quote.Key, *quote); err != nil {
			return err
		}
	}
	return ctx.Reply(fmt.Sprintf("Key: %s\nOwner: %s\nQuote:\n%s", quote.Key, quote.OwnerName, router.CodeBlock(quote.Content)))
}

type listCommand struct{ m *Module }

func (c *listCommand) Callsign() string { return "list" }

func (c *listCommand) Run(ctx *router.Context, raw string, tokens []string) error {
	quotes, err := c.m.all(ctx.Ctx, ctx.GuildID)
	if err != nil {
		return err
	}
	if len(quotes) == 0 {
		return ctx.Reply("There are no quotes in this guild!")
	}
	var b strings.Builder
	for _, q := range quotes {
		fmt.Fprintf(&b, "%s: %s\n", q.Key, q.Content)
	}
	return ctx.Reply("Quotes in this server:\n" + router.CodeBlock(b.String()))
}

type exportCommand struct{ m *Module }

func (c *exportCommand) Callsign() string { return "export" }

func (c *exportCommand) Run(ctx *router.Context, raw string, tokens []string) error {
	quotes, err := c.m.all(ctx.Ctx, ctx.GuildID)
	if err != nil {
		return err
	}
	if len(quotes) == 0 {
		return ctx.Reply("There are no quotes in this guild!")
	}
	payload, err := json.MarshalIndent(quotes, "", "  ")
	if err != nil {
		return err
	}
	return ctx.Responder.SendFile(ctx.ChannelID, "quotes.json", payload)
}
