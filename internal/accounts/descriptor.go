// Package accounts loads and edits the fleet's account configuration document.
package accounts

import (
	"path/filepath"
	"strings"
)

// Provider is the probe family an account belongs to.
type Provider string

const (
	ProviderCodex     Provider = "codex"
	ProviderAnthropic Provider = "anthropic"
	ProviderFireworks Provider = "fireworks"
	ProviderUnknown   Provider = "unknown"
)

var providerAliases = map[string]Provider{
	"codex":         ProviderCodex,
	"openai_codex":  ProviderCodex,
	"openai":        ProviderCodex,
	"anthropic":     ProviderAnthropic,
	"claude":        ProviderAnthropic,
	"claude_api":    ProviderAnthropic,
	"anthropic_api": ProviderAnthropic,
	"fireworks":     ProviderFireworks,
	"fireworks_ai":  ProviderFireworks,
	"fireworks_api": ProviderFireworks,
}

// ResolveProvider maps a configured provider name onto its probe family.
// An empty name means codex.
func ResolveProvider(name string) Provider {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return ProviderCodex
	}
	if p, ok := providerAliases[n]; ok {
		return p
	}
	return ProviderUnknown
}

// Descriptor is one account entry as the refresher sees it.
type Descriptor struct {
	Label            string   `json:"label"`
	Provider         Provider `json:"provider"`
	ProviderName     string   `json:"provider_name"`
	Enabled          bool     `json:"enabled"`
	ExpectedEmail    string   `json:"expected_email,omitempty"`
	ExpectedPlanType string   `json:"expected_planType,omitempty"`
	Note             string   `json:"note,omitempty"`
	AnthropicModel   string   `json:"anthropic_model,omitempty"`
	FireworksModel   string   `json:"fireworks_model,omitempty"`
	FireworksBaseURL string   `json:"fireworks_base_url,omitempty"`
}

// Home returns the account's private credential directory.
func (d Descriptor) Home(accountsDir string) string {
	return filepath.Join(accountsDir, d.Label)
}

// ValidLabel reports whether label can be used as a directory name under the
// accounts dir without escaping it.
func ValidLabel(label string) bool {
	if label == "" || label == "." || label == ".." {
		return false
	}
	return filepath.Base(label) == label && !strings.ContainsAny(label, `/\`)
}

// descriptorFromEntry builds a Descriptor from a raw config object. It returns
// false when the entry has no label.
func descriptorFromEntry(entry map[string]any) (Descriptor, bool) {
	label := stringField(entry, "label")
	if label == "" {
		return Descriptor{}, false
	}

	providerName := strings.ToLower(stringField(entry, "provider"))
	if providerName == "" {
		providerName = string(ProviderCodex)
	}

	d := Descriptor{
		Label:            label,
		Provider:         ResolveProvider(providerName),
		ProviderName:     providerName,
		Enabled:          enabledField(entry),
		ExpectedEmail:    stringField(entry, "expected_email"),
		ExpectedPlanType: stringField(entry, "expected_planType", "expected_plan_type"),
		Note:             stringField(entry, "note"),
	}

	switch d.Provider {
	case ProviderAnthropic:
		d.AnthropicModel = stringField(entry, "anthropic_model", "model")
	case ProviderFireworks:
		d.FireworksModel = stringField(entry, "fireworks_model", "model")
		d.FireworksBaseURL = strings.TrimRight(stringField(entry, "fireworks_base_url", "base_url"), "/")
	}
	return d, true
}

// stringField returns the first non-empty trimmed string among keys.
func stringField(entry map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := entry[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// enabledField treats only a literal false as disabled.
func enabledField(entry map[string]any) bool {
	v, ok := entry["enabled"]
	if !ok {
		return true
	}
	b, isBool := v.(bool)
	return !isBool || b
}

// Credential layout under an account home.
const (
	CodexDir         = ".codex"
	SecretsDir       = ".secrets"
	CodexAuthFile    = "auth.json"
	AnthropicKeyFile = "anthropic_api_key.txt"
	FireworksKeyFile = "fireworks_api_key.txt"
)
