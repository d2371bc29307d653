package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeRuleFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "10-web.yaml", `
defaults:
  address: "127.0.0.1"
  port: 3430
  keypattern: "<prefix>;<matched>;<source>;<start_ts>"
  source: sophia
  ttl: 86400
  buckets: 4
  start_ts: true
rules:
  - prefix: web_page
    matchex: '"(?:GET|POST) .*?([^/]+[/]?) HTTP/'
    transform:
      max_length: 64
      strip_delimiter: ";"
      lowercase: true
  - prefix: web_client
    matchex: '^([^ ]+).*?"(?:GET|POST) .*? HTTP/[^"]*" (\d\d\d)'
    transform:
      groups: [1, 2]
`)

	w, err := LoadDir(dir, nil)
	require.NoError(t, err)
	require.Len(t, w.Rules(), 2)
	require.Equal(t, []string{"127.0.0.1:3430"}, w.Bindings())

	line := `10.0.0.9 - - [25/Aug/2026] "GET /docs/index.html HTTP/1.1" 404 512`
	got := w.Match("127.0.0.1", 3430, line)
	require.Len(t, got, 2)
	require.Equal(t, 86400, got[0].TTL)

	// Key shape: prefix;matched;source;start_ts
	require.Regexp(t, `^web_page;index\.html;sophia;\d+$`, got[0].Key)
	require.Regexp(t, `^web_client;10\.0\.0\.9,404;sophia;\d+$`, got[1].Key)
}

func TestLoadDirDefaultsAccumulateAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeRuleFile(t, dir, "00-defaults.yaml", `
defaults:
  address: "127.0.0.1"
  port: 3430
  keypattern: "<prefix>;<matched>"
  ttl: 600
rules: []
`)
	writeRuleFile(t, dir, "10-dns.yaml", `
defaults:
  port: 3431
rules:
  - prefix: dns_query
    matchex: 'query: (\S+)'
`)

	w, err := LoadDir(dir, nil)
	require.NoError(t, err)
	require.Len(t, w.Rules(), 1)

	got := w.Match("127.0.0.1", 3431, "query: example.com")
	require.Len(t, got, 1)
	require.Equal(t, "dns_query;example.com", got[0].Key)
}

func TestLoadDirErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad yaml", content: "rules: ["},
		{name: "bad template", content: `
rules:
  - address: "127.0.0.1"
    port: 1
    ttl: 60
    matchex: '(x)'
    keypattern: "{literal-only}"
`},
		{name: "bad matchex", content: `
rules:
  - address: "127.0.0.1"
    port: 1
    ttl: 60
    matchex: '('
    keypattern: "<matched>"
`},
		{name: "missing binding", content: `
rules:
  - ttl: 60
    matchex: '(x)'
    keypattern: "<matched>"
`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeRuleFile(t, dir, "bad.yaml", tc.content)
			_, err := LoadDir(dir, nil)
			require.Error(t, err)
		})
	}
}

func TestLoadDirEmpty(t *testing.T) {
	_, err := LoadDir(t.TempDir(), nil)
	require.Error(t, err, "a watch list with no rules cannot run")
}
