package rules

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ruleFile is the on-disk YAML shape: a defaults block applied before the
// file's rules are registered, then the rules themselves in order.
type ruleFile struct {
	Defaults RuleSpec   `yaml:"defaults"`
	Rules    []RuleSpec `yaml:"rules"`
}

// LoadDir builds a WatchList from every *.yaml / *.yml file in dir, in
// lexical filename order. Any malformed file, template or match expression
// fails the load; rules are validated before any traffic is accepted.
func LoadDir(dir string, logger *slog.Logger) (*WatchList, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("rules dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("rules path %q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading rules dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	watch := NewWatchList(logger)
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := loadFile(watch, path); err != nil {
			return nil, err
		}
	}

	if len(watch.Rules()) == 0 {
		return nil, fmt.Errorf("no rules defined under %q", dir)
	}
	return watch, nil
}

func loadFile(watch *WatchList, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading rule file %s: %w", path, err)
	}

	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing rule file %s: %w", path, err)
	}

	watch.Define(f.Defaults)
	for i, spec := range f.Rules {
		if err := watch.AddRule(spec); err != nil {
			return fmt.Errorf("rule file %s, rule %d: %w", path, i+1, err)
		}
	}
	return nil
}
