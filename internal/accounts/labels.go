package accounts

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	emailRe        = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	emailFindRe    = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	anthropicKeyRe = regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]+`)
	fireworksKeyRe = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}$`)
	nonSlugRe      = regexp.MustCompile(`[^a-z0-9]+`)
)

// IsEmail reports whether s looks like an email address.
func IsEmail(s string) bool {
	return emailRe.MatchString(s)
}

// ExtractEmails finds email addresses in free text, lower-cased and deduplicated in order.
func ExtractEmails(text string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, e := range emailFindRe.FindAllString(text, -1) {
		e = strings.ToLower(strings.TrimSpace(e))
		if _, ok := seen[e]; ok || !emailRe.MatchString(e) {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// ExtractAnthropicKeys finds sk-ant-… keys in free text, deduplicated in order.
func ExtractAnthropicKeys(text string) []string {
	return dedupe(anthropicKeyRe.FindAllString(text, -1))
}

// FindAnthropicKey returns the first Anthropic key in text.
func FindAnthropicKey(text string) string {
	return anthropicKeyRe.FindString(text)
}

// ExtractFireworksKeys returns lines that look like Fireworks keys. Blank and
// # comment lines are ignored.
func ExtractFireworksKeys(text string) []string {
	var keys []string
	for _, line := range strings.Split(text, "\n") {
		s := strings.TrimSpace(line)
		if s == "" || strings.HasPrefix(s, "#") || !fireworksKeyRe.MatchString(s) {
			continue
		}
		keys = append(keys, s)
	}
	return dedupe(keys)
}

// IsFireworksKey reports whether s has the shape of a Fireworks API key.
func IsFireworksKey(s string) bool {
	return fireworksKeyRe.MatchString(s)
}

// LabelFromEmail derives acc_<slug> from an email address.
func LabelFromEmail(email string) string {
	s := slug(email)
	if s == "" {
		return "acc_account"
	}
	return "acc_" + s
}

// LabelFromKey derives <prefix>_<last 10 key chars>.
func LabelFromKey(key, prefix, defaultPrefix string) string {
	p := slug(prefix)
	if p == "" {
		p = defaultPrefix
	}
	k := strings.ToLower(strings.TrimSpace(key))
	if len(k) > 10 {
		k = k[len(k)-10:]
	}
	tail := nonSlugRe.ReplaceAllString(k, "")
	if tail == "" {
		tail = "key"
	}
	return p + "_" + tail
}

// UniqueLabel returns base, or base_2, base_3… when base is taken.
func UniqueLabel(base string, existing map[string]struct{}) string {
	if _, taken := existing[base]; !taken {
		return base
	}
	for i := 2; ; i++ {
		candidate := base + "_" + strconv.Itoa(i)
		if _, taken := existing[candidate]; !taken {
			return candidate
		}
	}
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Trim(nonSlugRe.ReplaceAllString(s, "_"), "_")
}

func dedupe(in []string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
