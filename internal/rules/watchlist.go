package rules

import (
	"fmt"
	"log/slog"
)

// RuleSpec is the explicit configuration shape of one watch rule. Zero-valued
// fields fall back to the WatchList defaults in effect when the rule is added.
type RuleSpec struct {
	Address    string            `yaml:"address"`
	Port       int               `yaml:"port"`
	Matchex    string            `yaml:"matchex"`
	KeyPattern string            `yaml:"keypattern"`
	TTL        int               `yaml:"ttl"`
	Buckets    int               `yaml:"buckets"`
	Source     string            `yaml:"source"`
	Prefix     string            `yaml:"prefix"`
	StartTS    bool              `yaml:"start_ts"`
	Fields     map[string]string `yaml:"fields"`
	Transform  TransformSpec     `yaml:"transform"`
}

// merge fills zero-valued spec fields from the defaults.
func (s RuleSpec) merge(d RuleSpec) RuleSpec {
	if s.Address == "" {
		s.Address = d.Address
	}
	if s.Port == 0 {
		s.Port = d.Port
	}
	if s.Matchex == "" {
		s.Matchex = d.Matchex
	}
	if s.KeyPattern == "" {
		s.KeyPattern = d.KeyPattern
	}
	if s.TTL == 0 {
		s.TTL = d.TTL
	}
	if s.Buckets == 0 {
		s.Buckets = d.Buckets
	}
	if s.Source == "" {
		s.Source = d.Source
	}
	if s.Prefix == "" {
		s.Prefix = d.Prefix
	}
	if !s.StartTS {
		s.StartTS = d.StartTS
	}
	merged := make(map[string]string, len(d.Fields)+len(s.Fields))
	for k, v := range d.Fields {
		merged[k] = v
	}
	for k, v := range s.Fields {
		merged[k] = v
	}
	s.Fields = merged
	return s
}

// Increment is one pending counter update produced by a firing rule.
type Increment struct {
	Key string
	TTL int // seconds
}

// WatchList holds all configured watch rules, indexed by address:port so
// multiple rules can share one listening binding and a single datagram can
// trigger multiple rules.
type WatchList struct {
	defaults  RuleSpec
	rules     []*WatchRule
	byBinding map[string][]*WatchRule
	logger    *slog.Logger
}

// NewWatchList creates an empty watch list.
func NewWatchList(logger *slog.Logger) *WatchList {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatchList{
		byBinding: make(map[string][]*WatchRule),
		logger:    logger,
	}
}

// Define merges default values used by subsequently added rules.
func (w *WatchList) Define(defaults RuleSpec) {
	w.defaults = defaults.merge(w.defaults)
}

// AddRule parses the key template, compiles the match expression and
// registers the rule under its address:port binding. All errors here are
// configuration errors and should abort startup.
func (w *WatchList) AddRule(spec RuleSpec) error {
	rule, err := newWatchRule(spec.merge(w.defaults))
	if err != nil {
		return err
	}
	binding := Binding(rule.Address, rule.Port)
	w.rules = append(w.rules, rule)
	w.byBinding[binding] = append(w.byBinding[binding], rule)
	return nil
}

// Rules returns all registered rules in registration order.
func (w *WatchList) Rules() []*WatchRule { return w.rules }

// Bindings returns the distinct address:port bindings that need listeners.
func (w *WatchList) Bindings() []string {
	bindings := make([]string, 0, len(w.byBinding))
	for b := range w.byBinding {
		bindings = append(bindings, b)
	}
	return bindings
}

// Match runs a line through every rule bound to address:port, in
// registration order, and returns one Increment per firing rule. A missing
// non-optional substitution abandons that rule's key generation only.
func (w *WatchList) Match(address string, port int, line string) []Increment {
	rules, ok := w.byBinding[Binding(address, port)]
	if !ok {
		return nil
	}

	var matches []Increment
	for _, rule := range rules {
		submatches := rule.matchex.FindStringSubmatch(line)
		if submatches == nil {
			continue
		}
		captures, ok := rule.transform.Apply(submatches)
		if !ok {
			continue
		}
		key, err := rule.Key(captures)
		if err != nil {
			w.logger.Warn("key generation failed",
				"template", rule.template.String(),
				"error", err,
			)
			continue
		}
		matches = append(matches, Increment{Key: key, TTL: rule.TTL})
	}
	return matches
}

// Binding formats an address:port pair the way the watch list indexes it.
func Binding(address string, port int) string {
	return fmt.Sprintf("%s:%d", address, port)
}
