package template

import (
	"fmt"
	"sort"
	"strings"
)

// MissingPlaceholderError is returned when the template references a user
// placeholder absent from the substitution map (spec §4.3).
type MissingPlaceholderError struct {
	Name string
}

func (e *MissingPlaceholderError) Error() string {
	return fmt.Sprintf("missing-placeholder(%s)", e.Name)
}

// Render performs user-placeholder substitution over tpl using vars,
// leaving runtime placeholders (${lowercase...}, ${meta...}) untouched for
// the Scheduler to resolve at launch (spec §4.3's "partial substitution"
// contract).
//
// Render is a single pass over the tokenized template: each user
// placeholder is replaced by the literal bytes of its value exactly once,
// and the result is never re-tokenized. This is what makes property 4 in
// spec §8 hold structurally rather than by escaping convention: a value of
// "${OWNER_EMAIL}" is inserted as the 14-byte string "${OWNER_EMAIL}" and
// is never looked at again, so it cannot trigger a second substitution.
//
// Render is idempotent (spec §8 property 3): rendering the *tokenized*
// fragments is a pure function of (fragments, vars), and Tokenize itself
// is a pure function of tpl, so RenderString(tpl, vars) called twice
// produces byte-identical output.
func Render(fragments []Fragment, vars map[string]string) (string, error) {
	var missing []string
	var out strings.Builder

	for _, f := range fragments {
		switch f.Kind {
		case Literal:
			out.WriteString(f.Text)
		case RuntimePlaceholder:
			out.WriteString(f.Raw)
		case UserPlaceholder:
			v, ok := vars[f.Text]
			if !ok {
				missing = append(missing, f.Text)
				continue
			}
			out.WriteString(v)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return "", &MissingPlaceholderError{Name: missing[0]}
	}
	return out.String(), nil
}

// RenderString tokenizes tpl and renders it in one call.
func RenderString(tpl string, vars map[string]string) (string, error) {
	return Render(Tokenize(tpl), vars)
}

// RequiredUserPlaceholders returns the distinct user-placeholder names a
// template references, used to validate a substitution map up front
// before attempting to render (so bad-request responses can name every
// missing field, not just the first one found mid-render).
func RequiredUserPlaceholders(fragments []Fragment) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, f := range fragments {
		if f.Kind != UserPlaceholder {
			continue
		}
		if _, ok := seen[f.Text]; ok {
			continue
		}
		seen[f.Text] = struct{}{}
		out = append(out, f.Text)
	}
	sort.Strings(out)
	return out
}
