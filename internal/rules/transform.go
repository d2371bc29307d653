package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// FieldMatched is the field name the default transform assigns to the first
// capture group of a successful match.
const FieldMatched = "matched"

// TransformSpec configures the post-match transform for a rule. The zero
// value is the default transform: capture group 1 becomes the "matched"
// field, unmodified.
//
// Transforms replace per-rule callback hooks with declarative options:
//
//	groups           capture group indexes joined (with Join) into "matched";
//	                 defaults to [1]
//	join             separator for multiple groups; defaults to ","
//	max_length       truncate the joined value to at most this many bytes
//	strip_delimiter  trim the given delimiter and keep only the first
//	                 delimiter-separated segment (store keys must not
//	                 contain the delimiter)
//	lowercase        fold the value to lower case (DNS read path is
//	                 case-insensitive)
type TransformSpec struct {
	Groups         []int  `yaml:"groups"`
	Join           string `yaml:"join"`
	MaxLength      int    `yaml:"max_length"`
	StripDelimiter string `yaml:"strip_delimiter"`
	Lowercase      bool   `yaml:"lowercase"`
}

// Transform turns a regexp match into named substitution fields.
type Transform struct {
	spec       TransformSpec
	groupNames []string // named capture groups of the rule's matchex
}

func newTransform(spec TransformSpec, matchex *regexp.Regexp) (*Transform, error) {
	groups := spec.Groups
	if len(groups) == 0 {
		groups = []int{1}
	}
	for _, g := range groups {
		if g < 1 || g > matchex.NumSubexp() {
			return nil, fmt.Errorf("transform group %d out of range (matchex has %d groups)",
				g, matchex.NumSubexp())
		}
	}
	spec.Groups = groups
	if spec.Join == "" {
		spec.Join = ","
	}
	return &Transform{spec: spec, groupNames: matchex.SubexpNames()}, nil
}

// Apply produces substitution fields from the submatches of a firing rule.
// The second return value is false when the match should be ignored (an
// empty selected value), which suppresses the firing without being an error.
func (t *Transform) Apply(submatches []string) (map[string]string, bool) {
	parts := make([]string, 0, len(t.spec.Groups))
	for _, g := range t.spec.Groups {
		if g >= len(submatches) || submatches[g] == "" {
			return nil, false
		}
		parts = append(parts, submatches[g])
	}

	value := strings.Join(parts, t.spec.Join)
	if t.spec.MaxLength > 0 && len(value) > t.spec.MaxLength {
		value = value[:t.spec.MaxLength]
	}
	if d := t.spec.StripDelimiter; d != "" {
		value = strings.Trim(value, d)
		if i := strings.Index(value, d); i >= 0 {
			value = value[:i]
		}
	}
	if t.spec.Lowercase {
		value = strings.ToLower(value)
	}
	if value == "" {
		return nil, false
	}

	fields := map[string]string{FieldMatched: value}
	for i, name := range t.groupNames {
		if name == "" || i >= len(submatches) || submatches[i] == "" {
			continue
		}
		fields[name] = submatches[i]
	}
	return fields, true
}
