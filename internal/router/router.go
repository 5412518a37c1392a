package router

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/artifactgaming/carlbot/internal/boterr"
)

// Router dispatches tokens to the commands registered on it.
type Router struct {
	name       string
	gate       Gate
	order      []Command
	byCallsign map[string]Command
}

// New creates a router. The name shows up in "unknown command" responses
// for nested routers; the top-level router uses an empty name.
func New(name string) *Router {
	return &Router{name: name, byCallsign: map[string]Command{}}
}

// Register adds commands. A duplicate callsign among siblings is a startup
// configuration error and panics before any dispatch path opens.
func (r *Router) Register(cmds ...Command) {
	for _, cmd := range cmds {
		sign := cmd.Callsign()
		if _, exists := r.byCallsign[sign]; exists {
			panic(boterr.Configuration("duplicate callsign %q", sign))
		}
		r.byCallsign[sign] = cmd
		r.order = append(r.order, cmd)
	}
}

// SetGate installs the pre-dispatch authority gate. Installed once by
// bootstrap on the top-level router; nested routers inherit it through the
// dispatch context.
func (r *Router) SetGate(gate Gate) { r.gate = gate }

// Lookup returns the command registered under callsign.
func (r *Router) Lookup(callsign string) (Command, bool) {
	cmd, ok := r.byCallsign[callsign]
	return cmd, ok
}

// Commands returns the registered commands in registration order.
func (r *Router) Commands() []Command { return r.order }

// Dispatch resolves and executes raw. It never lets an error escape to the
// transport layer: user-addressable failures become responses, everything
// else is logged and reported generically.
func (r *Router) Dispatch(ctx *Context, raw string) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("raw", raw).Str("guild", ctx.GuildID).
				Msg("dispatch panicked")
			r.sendReply(ctx, "Something went wrong while running this command.")
		}
	}()

	if ctx.gate == nil {
		ctx.gate = r.gate
	}
	r.report(ctx, raw, r.run(ctx, raw, Tokenize(raw)))
}

// run walks the tree one level: match, gate, execute. Sets recurse through
// their nested router's run.
func (r *Router) run(ctx *Context, raw string, tokens []string) error {
	if len(tokens) == 0 {
		return r.sendListing(ctx)
	}

	cmd, ok := r.byCallsign[tokens[0]]
	if !ok {
		if r.name != "" {
			return boterr.NotFound("Unknown %s command: %s", r.name, tokens[0])
		}
		return boterr.NotFound("Unknown command: %s", tokens[0])
	}

	if ctx.gate != nil {
		if err := ctx.gate(ctx, cmd); err != nil {
			return err
		}
	}

	return cmd.Run(ctx, raw, tokens[1:])
}

// sendListing responds with the callsigns reachable at this level.
func (r *Router) sendListing(ctx *Context) error {
	var b strings.Builder
	for _, cmd := range r.order {
		b.WriteString(cmd.Callsign())
		b.WriteString("\n")
	}
	header := "Available commands:\n"
	if r.name != "" {
		header = fmt.Sprintf("Available %s commands:\n", r.name)
	}
	return ctx.Reply(header + CodeBlock(b.String()))
}

// report is the single reporting path for everything a dispatch can raise.
func (r *Router) report(ctx *Context, raw string, err error) {
	if err == nil {
		return
	}

	var validation *boterr.ValidationError
	var notFound *boterr.NotFoundError
	var denied *boterr.AuthorizationError
	var storage *boterr.StorageError

	switch {
	case errors.As(err, &validation):
		r.sendReply(ctx, validation.Error())
	case errors.As(err, &notFound):
		r.sendReply(ctx, notFound.Error())
	case errors.As(err, &denied):
		r.sendReply(ctx, "You lack the authority needed to use this command.\nAuthority required:\n"+
			CodeBlock(strings.Join(denied.Missing, "\n")+"\n"))
	case errors.As(err, &storage):
		log.Error().Err(err).Str("raw", raw).Str("guild", ctx.GuildID).Msg("storage failure during dispatch")
		r.sendReply(ctx, "A database error happened while running this command.\nThe error has been logged. Please try again later.")
	default:
		log.Error().Err(err).Str("raw", raw).Str("guild", ctx.GuildID).Msg("command failed")
		r.sendReply(ctx, "Something went wrong while running this command.")
	}
}

func (r *Router) sendReply(ctx *Context, message string) {
	if err := ctx.Reply(message); err != nil {
		log.Error().Err(err).Str("channel", ctx.ChannelID).Msg("failed to send response")
	}
}

// Set is a command whose body is a nested router: its children are reached
// through its callsign, and reaching the set itself with no remaining
// tokens lists them.
type Set struct {
	callsign string
	sub      *Router
}

// NewSet groups cmds under callsign.
func NewSet(callsign string, cmds ...Command) *Set {
	sub := New(callsign)
	sub.Register(cmds...)
	return &Set{callsign: callsign, sub: sub}
}

func (s *Set) Callsign() string { return s.callsign }

// Commands returns the children in registration order.
func (s *Set) Commands() []Command { return s.sub.Commands() }

// Lookup returns the child registered under callsign.
func (s *Set) Lookup(callsign string) (Command, bool) { return s.sub.Lookup(callsign) }

// Run descends into the nested router with the residual tokens.
func (s *Set) Run(ctx *Context, raw string, tokens []string) error {
	return s.sub.run(ctx, raw, tokens)
}

// Tokenize splits raw into whitespace-delimited tokens. A double-quoted
// span forms a single token with the quotes stripped.
func Tokenize(raw string) []string {
	var tokens []string
	var current strings.Builder
	pending := false
	inQuote := false

	flush := func() {
		if pending {
			tokens = append(tokens, current.String())
			current.Reset()
			pending = false
		}
	}

	for _, r := range raw {
		switch {
		case r == '"':
			inQuote = !inQuote
			pending = true
		case !inQuote && unicode.IsSpace(r):
			flush()
		default:
			current.WriteRune(r)
			pending = true
		}
	}
	flush()

	return tokens
}
