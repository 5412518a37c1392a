// Package module defines what a feature module exposes to bootstrap.
package module

import "github.com/artifactgaming/carlbot/internal/router"

// Module is one feature unit. ID is the stable identity used in derived
// table names; Commands returns the module's top-level command nodes.
type Module interface {
	ID() string
	Commands() []router.Command
}

// MessageReader is implemented by modules that want every guild message,
// not just commands.
type MessageReader interface {
	OnMessage(ctx *router.Context, content string, hasImage bool)
}
