package accounts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const defaultNoteSeparator = " · "

// AddCodexInput lists subscription accounts to add by email.
type AddCodexInput struct {
	Text             string
	Emails           []string
	ExpectedPlanType string
	Enabled          bool
}

// AddKeysInput lists API keys to add for an API-key provider.
type AddKeysInput struct {
	Text          string
	Keys          []string
	Enabled       bool
	Note          string
	LabelPrefix   string
	ExpectedEmail string
	Model         string
	BaseURL       string
}

// AddResult summarizes an add operation.
type AddResult struct {
	Added   int      `json:"added"`
	Updated int      `json:"updated"`
	Labels  []string `json:"labels"`
}

// Patch changes selected fields of one account. A nil field is left
// untouched; an empty string clears the field.
type Patch struct {
	ExpectedEmail    *string `json:"expected_email"`
	ExpectedPlanType *string `json:"expected_planType"`
	Enabled          *bool   `json:"enabled"`
	Provider         *string `json:"provider"`
	Note             *string `json:"note"`
}

// RemoveResult summarizes a remove operation.
type RemoveResult struct {
	Removed      []string          `json:"removed"`
	Missing      []string          `json:"missing"`
	DeletedLocal []string          `json:"deleted_local"`
	LocalErrors  map[string]string `json:"local_errors"`
	Remaining    int               `json:"remaining"`
}

func invalid(msg string) error {
	return configErrorf(ConfigInvalid, "", msg, nil)
}

// AddCodexAccounts adds or updates codex accounts for the given emails. An
// existing entry is matched by derived label, then by expected email among
// codex accounts.
func (r *Registry) AddCodexAccounts(in AddCodexInput) (*AddResult, error) {
	emails := ExtractEmails(in.Text)
	for _, e := range in.Emails {
		emails = append(emails, ExtractEmails(e)...)
	}
	emails = dedupe(emails)
	if len(emails) == 0 {
		return nil, invalid("no emails found")
	}
	plan := strings.TrimSpace(in.ExpectedPlanType)

	res := &AddResult{}
	var labels []string
	err := r.update(func(doc *document) error {
		list := entriesOrEmpty(doc)
		byLabel := map[string]map[string]any{}
		byEmail := map[string]map[string]any{}
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if label := stringField(m, "label"); label != "" {
				byLabel[label] = m
			}
			exp := strings.ToLower(stringField(m, "expected_email"))
			if exp != "" && ResolveProvider(stringField(m, "provider")) == ProviderCodex {
				byEmail[exp] = m
			}
		}

		for _, email := range emails {
			label := LabelFromEmail(email)
			labels = append(labels, label)

			entry := byLabel[label]
			if entry == nil {
				entry = byEmail[email]
			}
			if entry == nil {
				entry = map[string]any{
					"label":          label,
					"provider":       string(ProviderCodex),
					"enabled":        in.Enabled,
					"expected_email": email,
				}
				if plan != "" {
					entry["expected_planType"] = plan
				}
				list = append(list, entry)
				byLabel[label] = entry
				byEmail[email] = entry
				res.Added++
			} else {
				changed := false
				if stringField(entry, "provider") == "" {
					entry["provider"] = string(ProviderCodex)
					changed = true
				}
				if strings.ToLower(stringField(entry, "expected_email")) != email {
					entry["expected_email"] = email
					changed = true
				}
				if plan != "" && stringField(entry, "expected_planType") != plan {
					entry["expected_planType"] = plan
					changed = true
				}
				if enabledField(entry) != in.Enabled {
					entry["enabled"] = in.Enabled
					changed = true
				}
				if changed {
					res.Updated++
				}
			}

			if err := r.ensureHome(label); err != nil {
				return err
			}
		}
		doc.setEntries(list)
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Labels = sortedUnique(labels)
	return res, nil
}

// AddAnthropicKeys stores Anthropic API keys and adds one account per key.
func (r *Registry) AddAnthropicKeys(in AddKeysInput) (*AddResult, error) {
	return r.addKeys(ProviderAnthropic, in)
}

// AddFireworksKeys stores Fireworks API keys and adds one account per key.
func (r *Registry) AddFireworksKeys(in AddKeysInput) (*AddResult, error) {
	return r.addKeys(ProviderFireworks, in)
}

func (r *Registry) addKeys(provider Provider, in AddKeysInput) (*AddResult, error) {
	var (
		extract       func(string) []string
		defaultPrefix string
		modelField    string
		secretName    string
	)
	switch provider {
	case ProviderAnthropic:
		extract, defaultPrefix, modelField, secretName = ExtractAnthropicKeys, "claude", "anthropic_model", AnthropicKeyFile
	case ProviderFireworks:
		extract, defaultPrefix, modelField, secretName = ExtractFireworksKeys, "fireworks", "fireworks_model", FireworksKeyFile
	default:
		return nil, invalid(fmt.Sprintf("provider %s does not use API keys", provider))
	}

	keys := extract(in.Text)
	for _, k := range in.Keys {
		keys = append(keys, extract(k)...)
	}
	keys = dedupe(keys)
	if len(keys) == 0 {
		return nil, invalid(fmt.Sprintf("no %s api keys found", provider))
	}

	model := strings.TrimSpace(in.Model)
	note := strings.TrimSpace(in.Note)
	baseURL := strings.TrimRight(strings.TrimSpace(in.BaseURL), "/")
	expEmail := ""
	if emails := ExtractEmails(in.ExpectedEmail); len(emails) > 0 {
		expEmail = emails[0]
	}

	res := &AddResult{}
	var labels []string
	err := r.update(func(doc *document) error {
		list := entriesOrEmpty(doc)
		existing := map[string]struct{}{}
		byLabel := map[string]map[string]any{}
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if label := stringField(m, "label"); label != "" {
				existing[label] = struct{}{}
				byLabel[label] = m
			}
		}

		for _, key := range keys {
			label := LabelFromKey(key, in.LabelPrefix, defaultPrefix)
			if _, ok := byLabel[label]; !ok {
				label = UniqueLabel(label, existing)
				existing[label] = struct{}{}
			}
			labels = append(labels, label)

			entry := byLabel[label]
			if entry == nil {
				entry = map[string]any{
					"label":    label,
					"provider": string(provider),
					"enabled":  in.Enabled,
				}
				if expEmail != "" {
					entry["expected_email"] = expEmail
				}
				if note != "" {
					entry["note"] = note
				}
				if model != "" {
					entry[modelField] = model
				}
				if baseURL != "" && provider == ProviderFireworks {
					entry["fireworks_base_url"] = baseURL
				}
				list = append(list, entry)
				byLabel[label] = entry
				res.Added++
			} else {
				changed := false
				if strings.ToLower(stringField(entry, "provider")) != string(provider) {
					entry["provider"] = string(provider)
					changed = true
				}
				if enabledField(entry) != in.Enabled {
					entry["enabled"] = in.Enabled
					changed = true
				}
				if expEmail != "" && strings.ToLower(stringField(entry, "expected_email")) != expEmail {
					entry["expected_email"] = expEmail
					changed = true
				}
				if note != "" && stringField(entry, "note") != note {
					entry["note"] = note
					changed = true
				}
				if model != "" && stringField(entry, modelField, "model") != model {
					entry[modelField] = model
					changed = true
				}
				if baseURL != "" && provider == ProviderFireworks && stringField(entry, "fireworks_base_url", "base_url") != baseURL {
					entry["fireworks_base_url"] = baseURL
					changed = true
				}
				if changed {
					res.Updated++
				}
			}

			if err := r.ensureHome(label); err != nil {
				return err
			}
			secretPath := filepath.Join(r.accountsDir, label, SecretsDir, secretName)
			if err := writeSecret(secretPath, key); err != nil {
				return fmt.Errorf("write %s: %w", secretPath, err)
			}
		}
		doc.setEntries(list)
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Labels = sortedUnique(labels)
	return res, nil
}

// AppendNote appends text to an account note, or replaces it when replace is
// set or the note is empty. It returns the resulting note.
func (r *Registry) AppendNote(label, text, separator string, replace bool) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", invalid("label is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", invalid("append is required")
	}
	sep := strings.TrimSpace(separator)
	if sep == "" {
		sep = defaultNoteSeparator
	}

	var note string
	err := r.update(func(doc *document) error {
		entry, err := doc.find(label)
		if err != nil {
			return err
		}
		cur := stringField(entry, "note")
		if replace || cur == "" {
			note = text
		} else {
			note = cur + sep + text
		}
		entry["note"] = note
		return nil
	})
	return note, err
}

// SetNote sets an account note; an empty note removes it.
func (r *Registry) SetNote(label, note string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", invalid("label is required")
	}
	note = strings.TrimSpace(note)
	err := r.update(func(doc *document) error {
		entry, err := doc.find(label)
		if err != nil {
			return err
		}
		if note == "" {
			delete(entry, "note")
		} else {
			entry["note"] = note
		}
		return nil
	})
	return note, err
}

// Patch applies p to the account with label and returns the fields that
// changed (nil values mean cleared).
func (r *Registry) Patch(label string, p Patch) (map[string]any, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, invalid("label is required")
	}

	var email string
	if p.ExpectedEmail != nil {
		if raw := strings.TrimSpace(*p.ExpectedEmail); raw != "" {
			emails := ExtractEmails(raw)
			if len(emails) == 0 {
				return nil, invalid("expected_email must be a valid email (or empty to clear)")
			}
			email = emails[0]
		}
	}

	changed := map[string]any{}
	err := r.update(func(doc *document) error {
		entry, err := doc.find(label)
		if err != nil {
			return err
		}
		if p.ExpectedEmail != nil {
			applyString(entry, changed, "expected_email", email, strings.EqualFold)
		}
		if p.ExpectedPlanType != nil {
			applyString(entry, changed, "expected_planType", strings.TrimSpace(*p.ExpectedPlanType), nil)
		}
		if p.Enabled != nil && enabledField(entry) != *p.Enabled {
			entry["enabled"] = *p.Enabled
			changed["enabled"] = *p.Enabled
		}
		if p.Provider != nil {
			applyString(entry, changed, "provider", strings.TrimSpace(*p.Provider), nil)
		}
		if p.Note != nil {
			applyString(entry, changed, "note", strings.TrimSpace(*p.Note), nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

// applyString sets or clears key, recording the change.
func applyString(entry, changed map[string]any, key, value string, equal func(a, b string) bool) {
	if equal == nil {
		equal = func(a, b string) bool { return a == b }
	}
	if value == "" {
		if _, ok := entry[key]; ok {
			delete(entry, key)
			changed[key] = nil
		}
		return
	}
	if !equal(stringField(entry, key), value) {
		entry[key] = value
		changed[key] = value
	}
}

// Remove deletes accounts by label and optionally their credential homes.
func (r *Registry) Remove(labels []string, deleteLocalData bool) (*RemoveResult, error) {
	var uniq []string
	seen := map[string]struct{}{}
	for _, raw := range labels {
		label := strings.TrimSpace(raw)
		if label == "" {
			continue
		}
		if !ValidLabel(label) {
			return nil, invalid("invalid label: " + label)
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		uniq = append(uniq, label)
	}
	if len(uniq) == 0 {
		return nil, invalid("labels must be non-empty")
	}

	res := &RemoveResult{
		Removed:      []string{},
		Missing:      []string{},
		DeletedLocal: []string{},
		LocalErrors:  map[string]string{},
	}
	err := r.update(func(doc *document) error {
		list := entriesOrEmpty(doc)
		next := make([]any, 0, len(list))
		removed := map[string]struct{}{}
		for _, item := range list {
			m, ok := item.(map[string]any)
			if ok {
				label := stringField(m, "label", "account_label")
				if _, drop := seen[label]; drop && label != "" {
					removed[label] = struct{}{}
					continue
				}
				res.Remaining++
			}
			next = append(next, item)
		}
		for _, label := range uniq {
			if _, ok := removed[label]; ok {
				res.Removed = append(res.Removed, label)
			} else {
				res.Missing = append(res.Missing, label)
			}
		}
		doc.setEntries(next)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if deleteLocalData {
		for _, label := range uniq {
			if err := os.RemoveAll(filepath.Join(r.accountsDir, label)); err != nil {
				res.LocalErrors[label] = err.Error()
				continue
			}
			res.DeletedLocal = append(res.DeletedLocal, label)
		}
	}
	return res, nil
}

func (r *Registry) ensureHome(label string) error {
	return EnsureHome(r.accountsDir, label)
}

// EnsureHome creates the credential directories of an account home so an
// operator can drop credentials into them.
func EnsureHome(accountsDir, label string) error {
	home := filepath.Join(accountsDir, label)
	for _, dir := range []string{filepath.Join(home, CodexDir), filepath.Join(home, SecretsDir)} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// entriesOrEmpty treats a malformed accounts value as empty so add/remove
// can repair the document.
func entriesOrEmpty(doc *document) []any {
	list, err := doc.entries()
	if err != nil {
		return nil
	}
	return list
}

func sortedUnique(in []string) []string {
	out := dedupe(in)
	sort.Strings(out)
	if out == nil {
		out = []string{}
	}
	return out
}
