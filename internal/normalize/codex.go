package normalize

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Window keys for the codex window durations we recognise.
const (
	codexFiveHourMins = 300
	codexWeeklyMins   = 10080
)

type codexResult struct {
	RateLimits *codexRateLimits `json:"rateLimits"`
}

type codexRateLimits struct {
	Primary   json.RawMessage `json:"primary"`
	Secondary json.RawMessage `json:"secondary"`
	Credits   json.RawMessage `json:"credits"`
	PlanType  json.RawMessage `json:"planType"`
}

type codexWindow struct {
	UsedPercent        json.RawMessage `json:"usedPercent"`
	WindowDurationMins json.RawMessage `json:"windowDurationMins"`
	ResetsAt           json.RawMessage `json:"resetsAt"`
}

type codexCredits struct {
	HasCredits *bool           `json:"hasCredits"`
	Unlimited  *bool           `json:"unlimited"`
	Balance    json.RawMessage `json:"balance"`
}

// Codex normalizes an account/rateLimits/read result. accountEmail is the
// identity read from the local credential, empty when unknown.
func Codex(result json.RawMessage, exp Expected, accountEmail string) Status {
	st := base("codex", exp)
	setEmail(&st, exp, accountEmail)

	var res codexResult
	if err := json.Unmarshal(result, &res); err != nil || res.RateLimits == nil {
		return st
	}
	rl := res.RateLimits

	if plan, ok := rawString(rl.PlanType); ok {
		st.RatePlanType = ptr(plan)
		if exp.PlanType != "" {
			st.ExpectedPlanTypeMatch = ptr(plan == exp.PlanType)
		}
	}
	st.Credits = codexCreditsFrom(rl.Credits)

	for _, src := range []struct {
		name string
		raw  json.RawMessage
	}{{"primary", rl.Primary}, {"secondary", rl.Secondary}} {
		key, w, ok := codexWindowFrom(src.name, src.raw)
		if ok {
			st.Windows[key] = w
		}
	}
	return st
}

func codexWindowFrom(source string, raw json.RawMessage) (string, Window, bool) {
	var cw codexWindow
	if isNull(raw) || json.Unmarshal(raw, &cw) != nil {
		return "", Window{}, false
	}

	w := Window{Source: source}
	key := source
	if dur, ok := rawInt(cw.WindowDurationMins); ok {
		w.WindowDurationMins = ptr(dur)
		switch dur {
		case codexFiveHourMins:
			key = "5h"
		case codexWeeklyMins:
			key = "weekly"
		}
	}
	if used, ok := rawFloat(cw.UsedPercent); ok {
		w.UsedPercent = ptr(ClampPercent(used))
		if left, ok := LeftFromUsed(used); ok {
			w.LeftPercent = ptr(left)
		}
	}
	if resets, ok := rawInt(cw.ResetsAt); ok {
		w.ResetsAt = ptr(resets)
		w.ResetsAtISO = ptr(EpochISO(resets))
	}
	return key, w, true
}

func codexCreditsFrom(raw json.RawMessage) *Credits {
	var cc codexCredits
	if isNull(raw) || json.Unmarshal(raw, &cc) != nil {
		return nil
	}
	c := &Credits{HasCredits: cc.HasCredits, Unlimited: cc.Unlimited, Raw: compact(raw)}
	if s, ok := rawString(cc.Balance); ok {
		c.Balance = ptr(s)
	} else if f, ok := rawFloat(cc.Balance); ok {
		c.Balance = ptr(strconv.FormatFloat(f, 'f', -1, 64))
	}
	return c
}

func compact(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return append(json.RawMessage(nil), raw...)
	}
	return buf.Bytes()
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func rawString(raw json.RawMessage) (string, bool) {
	var s string
	if isNull(raw) || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return s, true
}

func rawFloat(raw json.RawMessage) (float64, bool) {
	var f float64
	if isNull(raw) || json.Unmarshal(raw, &f) != nil {
		return 0, false
	}
	return f, true
}

// rawInt accepts only integral JSON numbers.
func rawInt(raw json.RawMessage) (int64, bool) {
	var n json.Number
	if isNull(raw) || json.Unmarshal(raw, &n) != nil {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return i, true
}
