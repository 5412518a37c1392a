// Package router resolves raw command strings to executable commands.
//
// Commands form a forest: a leaf runs, a Set groups children under a shared
// callsign and is itself dispatchable. The authority gate installed on the
// top-level router is consulted before every matched command, at every
// nesting level, and every error a command raises funnels through one
// reporting path back to the requesting channel.
package router

import "context"

// Command is a single executable command.
type Command interface {
	// Callsign is the token that selects this command among its siblings.
	// Matching is case-sensitive.
	Callsign() string
	// Run executes the command with the original raw string and the
	// tokens remaining after the callsign path was consumed.
	Run(ctx *Context, raw string, tokens []string) error
}

// Schedulable marks a command that may be replayed on a timer without a
// live requester.
type Schedulable interface {
	Schedulable() bool
}

// Responder delivers output to a channel.
type Responder interface {
	Send(channelID, message string) error
	SendFile(channelID, filename string, contents []byte) error
}

// Directory resolves message tokens to principal ids. It is implemented by
// the platform layer; command handlers only ever see resolved ids.
type Directory interface {
	// ResolveMember resolves a mention or name token to a member id.
	ResolveMember(ctx *Context, token string) (string, bool)
	// ResolveMemberOrRole resolves a token to a member or role id.
	ResolveMemberOrRole(ctx *Context, token string) (string, bool)
	// MemberName returns the current display name for a member id.
	MemberName(ctx *Context, id string) (string, bool)
	// ChannelName returns the current name for a channel id.
	ChannelName(ctx *Context, id string) (string, bool)
}

// Gate is consulted before a matched command runs. A nil return admits the
// dispatch; an AuthorizationError or StorageError aborts it.
type Gate func(ctx *Context, cmd Command) error

// Context carries one dispatch through the tree.
type Context struct {
	Ctx         context.Context
	GuildID     string
	ChannelID   string
	PrincipalID string
	// Mentions holds the ids of directly addressed principals, in message
	// order.
	Mentions []string
	// Scheduled is set on timer replays, which have no live requester.
	Scheduled bool

	Directory Directory
	Responder Responder

	gate Gate
}

// Reply sends message to the originating channel.
func (c *Context) Reply(message string) error {
	return c.Responder.Send(c.ChannelID, message)
}

// CodeBlock wraps structured output in the platform's code block markup.
func CodeBlock(body string) string {
	return "```\n" + body + "```"
}
