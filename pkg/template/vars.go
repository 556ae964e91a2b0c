package template

import (
	"sort"
)

// Builder assembles a user-placeholder substitution map the way C3's
// rendering pipeline does in spec §4.3 step 5: system-derived fields first
// (so user input can never shadow them), then user-supplied fields.
type Builder struct {
	vars map[string]string
}

func NewBuilder() *Builder {
	return &Builder{vars: map[string]string{}}
}

// SetSystem sets a system-derived field (JOB_UUID, NAMESPACE, OWNER, ...).
// Render's single-pass substitution (see Render's doc comment) never
// re-tokenizes a substituted value, so SetSystem and SetUser are
// equally safe against injection; the two names exist to document intent
// at the call site — which fields PAPI derived itself versus took from
// caller input — not because they are handled differently.
func (b *Builder) SetSystem(name, value string) *Builder {
	b.vars[name] = value
	return b
}

// SetUser sets a user-supplied field verbatim. Render's single-pass,
// non-recursive substitution (see Render's doc comment) is what actually
// guarantees a value can never introduce a new placeholder (spec §8
// property 4): the value is written into the output once and never
// re-tokenized, so "${OWNER_EMAIL}" submitted as a title renders back out
// as the literal 14-byte string "${OWNER_EMAIL}" (spec §8 scenario S4).
func (b *Builder) SetUser(name, value string) *Builder {
	b.vars[name] = value
	return b
}

func (b *Builder) Map() map[string]string {
	out := make(map[string]string, len(b.vars))
	for k, v := range b.vars {
		out[k] = v
	}
	return out
}

// SortedNames is a small test/debug helper returning vars' keys sorted.
func (b *Builder) SortedNames() []string {
	names := make([]string, 0, len(b.vars))
	for k := range b.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
