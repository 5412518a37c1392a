// Package authority registers capability declarations, keeps the per-guild
// permission matrix, and gates dispatch.
package authority

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/artifactgaming/carlbot/internal/boterr"
	"github.com/artifactgaming/carlbot/internal/module"
	"github.com/artifactgaming/carlbot/internal/router"
)

// Capability is a named permission unit a command can require. Key is the
// stable process-wide identity, also used as the matrix column name.
type Capability struct {
	Name string
	Key  string
}

// CapabilityRequiring is implemented by modules and commands that demand
// capabilities before running.
type CapabilityRequiring interface {
	RequiredCapabilities() []Capability
}

// commandGroup matches command sets so registration can walk their children.
type commandGroup interface {
	Commands() []router.Command
}

// Registry holds every capability declared at startup. It is built once,
// before any dispatch path opens, and read-only afterwards.
type Registry struct {
	byName map[string]Capability
	byKey  map[string]Capability
}

// BuildRegistry aggregates the capability declarations of all modules and
// their command trees. Two distinct capabilities sharing a key abort
// startup with a ConfigurationError.
func BuildRegistry(modules []module.Module) (*Registry, error) {
	reg := &Registry{
		byName: map[string]Capability{},
		byKey:  map[string]Capability{},
	}

	for _, mod := range modules {
		if cr, ok := mod.(CapabilityRequiring); ok {
			if err := reg.add(cr.RequiredCapabilities()); err != nil {
				return nil, err
			}
		}
		if err := reg.addFromCommands(mod.Commands()); err != nil {
			return nil, err
		}
	}

	for _, capability := range reg.Capabilities() {
		log.Info().Str("name", capability.Name).Str("key", capability.Key).Msg("registered capability")
	}

	return reg, nil
}

func (r *Registry) addFromCommands(cmds []router.Command) error {
	for _, cmd := range cmds {
		if cr, ok := cmd.(CapabilityRequiring); ok {
			if err := r.add(cr.RequiredCapabilities()); err != nil {
				return err
			}
		}
		if group, ok := cmd.(commandGroup); ok {
			if err := r.addFromCommands(group.Commands()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Registry) add(caps []Capability) error {
	for _, capability := range caps {
		if existing, ok := r.byKey[capability.Key]; ok {
			if existing.Name != capability.Name {
				return boterr.Configuration("capability key %q declared as both %q and %q",
					capability.Key, existing.Name, capability.Name)
			}
			continue
		}
		r.byKey[capability.Key] = capability
		r.byName[capability.Name] = capability
	}
	return nil
}

// ByName looks a capability up by display name, falling back to the key.
func (r *Registry) ByName(name string) (Capability, bool) {
	if capability, ok := r.byName[name]; ok {
		return capability, true
	}
	capability, ok := r.byKey[name]
	return capability, ok
}

// Capabilities returns every registered capability ordered by key, the
// order the matrix columns are declared in.
func (r *Registry) Capabilities() []Capability {
	caps := make([]Capability, 0, len(r.byKey))
	for _, capability := range r.byKey {
		caps = append(caps, capability)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i].Key < caps[j].Key })
	return caps
}
