package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTemplateErrors(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
	}{
		{name: "double open angle", pattern: "<foo>;<<bar>"},
		{name: "optional inside substitution", pattern: "<{foo}>;<bar>"},
		{name: "optional without substitution", pattern: "{foo};<bar>"},
		{name: "optional with literal only", pattern: "<foo>;<bar>{;baz}"},
		{name: "nested optional", pattern: "{<a>{<b>}}"},
		{name: "stray close brace", pattern: "<foo>}"},
		{name: "stray close angle", pattern: "foo>"},
		{name: "unterminated substitution", pattern: "<foo"},
		{name: "unterminated optional", pattern: "{<foo>"},
		{name: "empty substitution", pattern: "<>"},
		{name: "two substitutions in optional", pattern: "{<a>;<b>}"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTemplate(tc.pattern)
			require.Error(t, err)
			require.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestRenderBasic(t *testing.T) {
	tmpl, err := ParseTemplate("<foo>;<bar>")
	require.NoError(t, err)

	key, err := tmpl.Render(map[string]string{"foo": "Foo", "bar": "BAAAR"})
	require.NoError(t, err)
	require.Equal(t, "Foo;BAAAR", key)
}

func TestRenderMissingRequired(t *testing.T) {
	tmpl, err := ParseTemplate("<foo>;<bar>;<baz>")
	require.NoError(t, err)

	_, err = tmpl.Render(map[string]string{"foo": "Foo", "bar": "BAAAR"})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrFieldMissing)
}

func TestRenderOptional(t *testing.T) {
	tmpl, err := ParseTemplate("<foo>;<bar>{;<baz>}")
	require.NoError(t, err)

	key, err := tmpl.Render(map[string]string{"foo": "Foo", "bar": "BAAAR"})
	require.NoError(t, err)
	require.Equal(t, "Foo;BAAAR", key, "undefined optional emits empty string")

	key, err = tmpl.Render(map[string]string{"foo": "Foo", "bar": "BAAAR", "baz": "soup"})
	require.NoError(t, err)
	require.Equal(t, "Foo;BAAAR;soup", key, "defined optional emits its contents")
}

// Generation followed by re-splitting on the delimiter recovers the original
// field values for templates of literals and substitutions only.
func TestRenderRoundTrip(t *testing.T) {
	tmpl, err := ParseTemplate("<prefix>;<matched>;<source>;<start_ts>")
	require.NoError(t, err)

	fields := map[string]string{
		"prefix":   "web_page",
		"matched":  "index.html",
		"source":   "athena",
		"start_ts": "1662966417",
	}
	key, err := tmpl.Render(fields)
	require.NoError(t, err)

	parts := strings.Split(key, ";")
	require.Equal(t, []string{"web_page", "index.html", "athena", "1662966417"}, parts)
}

func TestReferences(t *testing.T) {
	tmpl, err := ParseTemplate("<prefix>;<matched>{;<start_ts>}")
	require.NoError(t, err)

	require.True(t, tmpl.References("prefix"))
	require.True(t, tmpl.References("start_ts"), "optional substitutions count")
	require.False(t, tmpl.References("source"))
}
