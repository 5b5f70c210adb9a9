package probe

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule marks an error as auth-required when its message contains Contains.
// An empty Provider matches every provider.
type Rule struct {
	Provider string `yaml:"provider" json:"provider"`
	Contains string `yaml:"contains" json:"contains"`
}

// Rules is evaluated in order; the first match wins.
type Rules []Rule

// DefaultCodexPhrases is the phrasing codex uses for revoked or expired
// sessions. The list follows observed backend messages and may drift.
var DefaultCodexPhrases = []string{
	"authentication required",
	"unauthorized",
	"token_invalidated",
	"token invalidated",
	"token has been invalidated",
	"please try signing in again",
	"try signing in again",
	"sign in again",
}

// DefaultRules returns the built-in rule set.
func DefaultRules() Rules {
	return PhraseRules("codex", DefaultCodexPhrases)
}

// PhraseRules builds one rule per phrase for provider.
func PhraseRules(provider string, phrases []string) Rules {
	rules := make(Rules, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			rules = append(rules, Rule{Provider: provider, Contains: p})
		}
	}
	return rules
}

type rulesFile struct {
	Rules Rules `yaml:"rules"`
}

// LoadRules reads a YAML rule file. Both a top-level list and a
// {rules: [...]} document are accepted.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read auth rules: %w", err)
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		var doc rulesFile
		if err2 := yaml.Unmarshal(data, &doc); err2 != nil {
			return nil, fmt.Errorf("parse auth rules %s: %w", path, err2)
		}
		rules = doc.Rules
	}

	out := rules[:0]
	for _, r := range rules {
		r.Provider = strings.ToLower(strings.TrimSpace(r.Provider))
		r.Contains = strings.TrimSpace(r.Contains)
		if r.Contains != "" {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("auth rules %s: no rules", path)
	}
	return out, nil
}

// RulesFromConfig resolves the configured rule set: a rules file wins over a
// phrase list, which wins over the defaults.
func RulesFromConfig(phrases []string, file string) (Rules, error) {
	if file != "" {
		return LoadRules(file)
	}
	if rules := PhraseRules("codex", phrases); len(rules) > 0 {
		return rules, nil
	}
	return DefaultRules(), nil
}

// Match reports whether message indicates the operator must re-authenticate.
func (r Rules) Match(provider, message string) bool {
	_, ok := r.Find(provider, message)
	return ok
}

// Find returns the first rule matching message.
func (r Rules) Find(provider, message string) (Rule, bool) {
	msg := strings.ToLower(message)
	provider = strings.ToLower(provider)
	for _, rule := range r {
		if rule.Provider != "" && rule.Provider != provider {
			continue
		}
		if strings.Contains(msg, strings.ToLower(rule.Contains)) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Apply sets perr.RequiresAuth from its kind and the rule set.
func (r Rules) Apply(perr *Error) {
	perr.RequiresAuth = perr.Kind == AuthRequired || r.Match(perr.Provider, perr.StructuredMessage())
}

// ErrorState is the terminal state of a failed probe after Apply.
func ErrorState(perr *Error) State {
	if perr.RequiresAuth {
		return StateAuthRequired
	}
	return StateError
}
