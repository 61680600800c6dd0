// Package registry canonicalises the target names decisions attach to,
// preventing namespace fragmentation (several spellings of the same subject
// mapping to different metadata rows) without blocking brand new targets.
package registry

import (
	"fmt"
	"strings"
)

// isValidTargetChar mirrors the identifier rules used elsewhere in the
// engine for filesystem-safe names: letters, digits, dash, underscore, dot,
// and forward slash (for hierarchical targets like "service/auth").
func isValidTargetChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.' || c == '/':
		return true
	}
	return false
}

// IsValidTargetName reports whether s is a non-empty, filesystem-safe
// target name.
func IsValidTargetName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isValidTargetChar(s[i]) {
			return false
		}
	}
	return true
}

// Registry maps target aliases to a canonical spelling. Lookups fall back
// to case-insensitive matching against known canonical names before
// treating the input as a brand new, free-form target.
type Registry struct {
	// canonical maps a lowercased alias or canonical name to its canonical form.
	canonical map[string]string
}

// New returns an empty target registry.
func New() *Registry {
	return &Registry{canonical: make(map[string]string)}
}

// Alias registers alias as resolving to canonical. Both are trimmed;
// registering an alias equal to an existing canonical name returns an error
// and registers nothing, to avoid accidentally hiding a real target behind
// its own alias.
func (r *Registry) Alias(alias, canonical string) error {
	alias = strings.TrimSpace(alias)
	canonical = strings.TrimSpace(canonical)
	if alias == "" || canonical == "" {
		return fmt.Errorf("registry: alias and canonical target must be non-empty")
	}
	if !IsValidTargetName(canonical) {
		return fmt.Errorf("registry: invalid canonical target name %q", canonical)
	}
	if existing, ok := r.canonical[strings.ToLower(alias)]; ok && strings.EqualFold(existing, alias) && !strings.EqualFold(alias, canonical) {
		return fmt.Errorf("registry: %q is already a canonical target", alias)
	}
	r.canonical[strings.ToLower(alias)] = canonical
	r.canonical[strings.ToLower(canonical)] = canonical
	return nil
}

// Canonicalize resolves name to its canonical spelling. Resolution order:
//  1. exact alias/canonical match (case-insensitive)
//  2. the trimmed input verbatim, treated as a brand new target
//
// An empty or all-whitespace name is rejected.
func (r *Registry) Canonicalize(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("registry: target name is required")
	}
	if !IsValidTargetName(trimmed) {
		return "", fmt.Errorf("registry: invalid target name %q", trimmed)
	}
	if canon, ok := r.canonical[strings.ToLower(trimmed)]; ok {
		return canon, nil
	}
	return trimmed, nil
}

// Aliases returns the registered alias → canonical pairs, useful for
// persisting the registry alongside process configuration.
func (r *Registry) Aliases() map[string]string {
	out := make(map[string]string, len(r.canonical))
	for k, v := range r.canonical {
		out[k] = v
	}
	return out
}
