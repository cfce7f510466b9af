package orchestrator

import "strings"

// Directives holds the leading @key tokens parsed from a message.
type Directives struct {
	ModelOverride string
	Extra         map[string]string
}

// ParseDirectives consumes leading "@name" and "@key" / "@key=value"
// tokens from text. modelNames, if matched against the first token,
// rewrites the request to use that model for this call only; any other
// leading @key tokens are collected and otherwise ignored by the core.
// Returns the parsed directives and the remaining body.
func ParseDirectives(text string) (Directives, string) {
	d := Directives{Extra: map[string]string{}}
	rest := strings.TrimSpace(text)
	first := true

	for {
		if !strings.HasPrefix(rest, "@") {
			break
		}
		spaceIdx := strings.IndexAny(rest, " \t\n")
		var token string
		if spaceIdx < 0 {
			token, rest = rest, ""
		} else {
			token, rest = rest[:spaceIdx], strings.TrimSpace(rest[spaceIdx+1:])
		}
		token = strings.TrimPrefix(token, "@")
		if token == "" {
			break
		}
		eq := strings.IndexByte(token, '=')
		if first && eq < 0 {
			// "@name" as the very first token: candidate model directive,
			// validated against known model ids by the caller.
			d.ModelOverride = token
		} else if eq >= 0 {
			d.Extra[token[:eq]] = token[eq+1:]
		} else {
			d.Extra[token] = ""
		}
		first = false
	}
	return d, rest
}
