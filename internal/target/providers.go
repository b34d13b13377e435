package target

import (
	"fmt"
	"sort"
	"strings"
)

// Provider is a typed piece of analysis output attached to a configured
// target.
type Provider interface {
	ProviderName() string
}

// ProviderCollection is the set of providers a target's analysis produced.
type ProviderCollection struct {
	providers map[string]Provider
}

// NewProviderCollection indexes providers by name. Duplicate names are an
// analysis bug.
func NewProviderCollection(providers []Provider) (*ProviderCollection, error) {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		name := p.ProviderName()
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("duplicate provider %q", name)
		}
		byName[name] = p
	}
	return &ProviderCollection{providers: byName}, nil
}

// Get returns the named provider.
func (c *ProviderCollection) Get(name string) (Provider, bool) {
	p, ok := c.providers[name]
	return p, ok
}

// ProviderNames returns all provider names, sorted for deterministic output.
func (c *ProviderCollection) ProviderNames() []string {
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render formats the collection for display, one provider per line.
func (c *ProviderCollection) Render() string {
	var b strings.Builder
	for _, name := range c.ProviderNames() {
		fmt.Fprintf(&b, "%s\n", c.providers[name])
	}
	return b.String()
}

// DebugRender formats the collection with Go-syntax values.
func (c *ProviderCollection) DebugRender() string {
	var b strings.Builder
	for _, name := range c.ProviderNames() {
		fmt.Fprintf(&b, "%#v\n", c.providers[name])
	}
	return b.String()
}
