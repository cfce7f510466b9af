package orchestrator

import "testing"

func TestParseDirectivesNoLeadingAtReturnsTextUnchanged(t *testing.T) {
	d, rest := ParseDirectives("hello there")
	if d.ModelOverride != "" || len(d.Extra) != 0 {
		t.Errorf("d = %+v, want empty directives", d)
	}
	if rest != "hello there" {
		t.Errorf("rest = %q, want unchanged text", rest)
	}
}

func TestParseDirectivesFirstTokenIsModelCandidate(t *testing.T) {
	d, rest := ParseDirectives("@opus fix the bug")
	if d.ModelOverride != "opus" {
		t.Errorf("ModelOverride = %q, want opus", d.ModelOverride)
	}
	if rest != "fix the bug" {
		t.Errorf("rest = %q, want %q", rest, "fix the bug")
	}
}

func TestParseDirectivesKeyValueTokensCollectIntoExtra(t *testing.T) {
	d, rest := ParseDirectives("@effort=high @verbose do the thing")
	if d.ModelOverride != "" {
		t.Errorf("ModelOverride = %q, want empty when first token has '='", d.ModelOverride)
	}
	if d.Extra["effort"] != "high" {
		t.Errorf("Extra[effort] = %q, want high", d.Extra["effort"])
	}
	if v, ok := d.Extra["verbose"]; !ok || v != "" {
		t.Errorf("Extra[verbose] = (%q, %v), want empty-value present", v, ok)
	}
	if rest != "do the thing" {
		t.Errorf("rest = %q, want %q", rest, "do the thing")
	}
}

func TestParseDirectivesStopsAtFirstNonAtToken(t *testing.T) {
	d, rest := ParseDirectives("@opus @effort=high this is not @a directive")
	if d.ModelOverride != "opus" {
		t.Errorf("ModelOverride = %q, want opus", d.ModelOverride)
	}
	if d.Extra["effort"] != "high" {
		t.Errorf("Extra[effort] = %q, want high", d.Extra["effort"])
	}
	want := "this is not @a directive"
	if rest != want {
		t.Errorf("rest = %q, want %q", rest, want)
	}
}

func TestParseDirectivesEmptyStringYieldsEmptyRest(t *testing.T) {
	d, rest := ParseDirectives("   ")
	if d.ModelOverride != "" || rest != "" {
		t.Errorf("got (%+v, %q), want empty directives and empty rest", d, rest)
	}
}
