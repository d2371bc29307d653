package rules

import (
	"errors"
	"fmt"
	"strings"
)

// ErrParse marks key-template syntax errors. These are configuration errors:
// they are raised when a rule is defined, before any traffic is accepted.
var ErrParse = errors.New("key template syntax error")

// ErrFieldMissing marks a non-optional substitution whose field is undefined
// at generation time. Local to one key-generation attempt.
var ErrFieldMissing = errors.New("substitution field missing")

func parseErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}

// token is one element of a parsed key template.
type token interface {
	// emit renders the token against the given field values.
	emit(fields map[string]string) (string, error)
}

// literalToken emits its text verbatim.
type literalToken string

func (t literalToken) emit(map[string]string) (string, error) {
	return string(t), nil
}

// substitutionToken resolves a named field. Undefined fields are an error
// unless the token sits inside an optional group keyed on the same name.
type substitutionToken string

func (t substitutionToken) emit(fields map[string]string) (string, error) {
	v, ok := fields[string(t)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrFieldMissing, string(t))
	}
	return v, nil
}

// optionalToken emits the empty string when its substitution is undefined,
// otherwise emits all of its inner tokens (literals plus the substitution).
type optionalToken struct {
	name  string
	inner []token
}

func (t optionalToken) emit(fields map[string]string) (string, error) {
	if _, ok := fields[t.name]; !ok {
		return "", nil
	}
	var b strings.Builder
	for _, tok := range t.inner {
		s, err := tok.emit(fields)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// Template is a parsed key template: an ordered sequence of literal,
// substitution and optional-group tokens.
//
// Grammar, evaluated left to right:
//
//	substitution  <name>      name is one or more non-{}<> characters
//	optional      {...}       exactly one substitution plus optional literals
//	literal                   a maximal run of non-{}<> characters
//
// Nesting an optional group inside an optional group, a substitution whose
// name contains delimiter characters, and any stray {}<> character are all
// syntax errors detected at parse time.
type Template struct {
	raw    string
	tokens []token
}

// ParseTemplate parses a key template string.
func ParseTemplate(pattern string) (*Template, error) {
	tokens, err := parseTokens(pattern, true)
	if err != nil {
		return nil, err
	}
	return &Template{raw: pattern, tokens: tokens}, nil
}

// String returns the original template text.
func (t *Template) String() string { return t.raw }

// Render generates a key from the template and the given field values.
// A missing non-optional substitution returns an error wrapping
// ErrFieldMissing; optional groups with undefined substitutions emit
// the empty string.
func (t *Template) Render(fields map[string]string) (string, error) {
	var b strings.Builder
	for _, tok := range t.tokens {
		s, err := tok.emit(fields)
		if err != nil {
			return "", fmt.Errorf("template %q: %w", t.raw, err)
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// References reports whether the template contains a substitution (optional
// or not) for the given field name.
func (t *Template) References(name string) bool {
	for _, tok := range t.tokens {
		switch v := tok.(type) {
		case substitutionToken:
			if string(v) == name {
				return true
			}
		case optionalToken:
			if v.name == name {
				return true
			}
		}
	}
	return false
}

// parseTokens scans pattern into tokens. Optional groups are only allowed at
// the outer level; allowOptional is false when parsing group content.
func parseTokens(pattern string, allowOptional bool) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(pattern) {
		switch pattern[i] {
		case '<':
			end := strings.IndexAny(pattern[i+1:], "{}<>")
			if end < 0 || pattern[i+1+end] != '>' {
				return nil, parseErrorf("unterminated substitution in %q", pattern)
			}
			name := pattern[i+1 : i+1+end]
			if name == "" {
				return nil, parseErrorf("empty substitution in %q", pattern)
			}
			tokens = append(tokens, substitutionToken(name))
			i += end + 2
		case '{':
			if !allowOptional {
				return nil, parseErrorf("optional group nested in optional group in %q", pattern)
			}
			end := strings.IndexByte(pattern[i+1:], '}')
			if end < 0 {
				return nil, parseErrorf("unterminated optional group in %q", pattern)
			}
			inner, err := parseTokens(pattern[i+1:i+1+end], false)
			if err != nil {
				return nil, err
			}
			opt, err := newOptionalToken(inner)
			if err != nil {
				return nil, fmt.Errorf("%w in %q", err, pattern)
			}
			tokens = append(tokens, opt)
			i += end + 2
		case '}', '>':
			return nil, parseErrorf("unexpected %q in %q", string(pattern[i]), pattern)
		default:
			end := strings.IndexAny(pattern[i:], "{}<>")
			if end < 0 {
				end = len(pattern) - i
			}
			tokens = append(tokens, literalToken(pattern[i:i+end]))
			i += end
		}
	}
	return tokens, nil
}

// newOptionalToken validates group content: exactly one substitution,
// the rest literals.
func newOptionalToken(inner []token) (optionalToken, error) {
	name := ""
	for _, tok := range inner {
		sub, ok := tok.(substitutionToken)
		if !ok {
			continue
		}
		if name != "" {
			return optionalToken{}, parseErrorf("multiple substitutions in optional group")
		}
		name = string(sub)
	}
	if name == "" {
		return optionalToken{}, parseErrorf("no substitution in optional group")
	}
	return optionalToken{name: name, inner: inner}, nil
}
