package template_test

import (
	"errors"
	"testing"

	"github.com/ai4os/papi/pkg/template"
)

func TestTokenize_ClassifiesUserVsRuntimePlaceholders(t *testing.T) {
	frags := template.Tokenize("job ${JOB_UUID} uses ${meta.domain} and ${lower_case} end")

	want := []template.Fragment{
		{Kind: template.Literal, Text: "job "},
		{Kind: template.UserPlaceholder, Text: "JOB_UUID", Raw: "${JOB_UUID}"},
		{Kind: template.Literal, Text: " uses "},
		{Kind: template.RuntimePlaceholder, Text: "meta.domain", Raw: "${meta.domain}"},
		{Kind: template.Literal, Text: " and "},
		{Kind: template.RuntimePlaceholder, Text: "lower_case", Raw: "${lower_case}"},
		{Kind: template.Literal, Text: " end"},
	}

	if len(frags) != len(want) {
		t.Fatalf("got %d fragments, want %d: %+v", len(frags), len(want), frags)
	}
	for i := range want {
		if frags[i] != want[i] {
			t.Errorf("fragment %d: got %+v, want %+v", i, frags[i], want[i])
		}
	}
}

func TestRender_PartialSubstitution_LeavesRuntimePlaceholdersUntouched(t *testing.T) {
	tpl := `{"id": "${JOB_UUID}", "host": "${meta.domain}"}`
	out, err := template.RenderString(tpl, map[string]string{"JOB_UUID": "abc-123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"id": "abc-123", "host": "${meta.domain}"}`
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestRender_MissingUserPlaceholder_Errors(t *testing.T) {
	_, err := template.RenderString("${TITLE}", map[string]string{})
	var mpe *template.MissingPlaceholderError
	if !errors.As(err, &mpe) {
		t.Fatalf("want MissingPlaceholderError, got %v", err)
	}
	if mpe.Name != "TITLE" {
		t.Errorf("got missing name %q, want TITLE", mpe.Name)
	}
}

func TestRender_Idempotent(t *testing.T) {
	tpl := `hello ${NAME}, runtime=${meta.x}`
	vars := map[string]string{"NAME": "alice"}

	out1, err1 := template.RenderString(tpl, vars)
	out2, err2 := template.RenderString(tpl, vars)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if out1 != out2 {
		t.Errorf("render is not idempotent: %q != %q", out1, out2)
	}
}

func TestRender_UserValueCannotIntroduceNewPlaceholder(t *testing.T) {
	// spec §8 scenario S4: submitting title = "${OWNER_EMAIL}" must make
	// that literal 14-byte string appear in the output, not the owner's
	// email, and it must not be re-expanded as a placeholder.
	tpl := `{"title": "${TITLE}", "owner_email": "${OWNER_EMAIL}"}`
	vars := map[string]string{
		"TITLE":       "${OWNER_EMAIL}",
		"OWNER_EMAIL": "alice@example.org",
	}

	out, err := template.RenderString(tpl, vars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"title": "${OWNER_EMAIL}", "owner_email": "alice@example.org"}`
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}

	if len("${OWNER_EMAIL}") != 14 {
		t.Fatalf("sanity check on literal length failed")
	}
}

func TestRender_AllUserPlaceholdersMustBePresent(t *testing.T) {
	tpl := "${A} ${B} ${C}"
	frags := template.Tokenize(tpl)
	required := template.RequiredUserPlaceholders(frags)
	want := []string{"A", "B", "C"}
	if len(required) != len(want) {
		t.Fatalf("got %v, want %v", required, want)
	}
	for i := range want {
		if required[i] != want[i] {
			t.Errorf("got %v, want %v", required, want)
		}
	}
}

func TestRender_RuntimePlaceholderWithDotsAndUppercasePrefix(t *testing.T) {
	// A placeholder is runtime-class the moment it contains any lowercase
	// letter, even if it starts uppercase (spec distinguishes purely by
	// case convention, not by position).
	frags := template.Tokenize("${NODE.Meta}")
	if len(frags) != 1 || frags[0].Kind != template.RuntimePlaceholder {
		t.Errorf("got %+v, want single runtime placeholder", frags)
	}
}
