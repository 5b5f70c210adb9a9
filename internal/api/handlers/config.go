package handlers

import (
	"context"
	"net/http"

	"github.com/pysugar/codex-status-fleet/internal/accounts"
)

// Pusher publishes the account inventory to the sink.
type Pusher interface {
	PushInventory(ctx context.Context) error
}

type addAccountsRequest struct {
	Text             string   `json:"text"`
	Emails           []string `json:"emails"`
	ExpectedPlanType string   `json:"expected_planType"`
	Enabled          *bool    `json:"enabled"`
}

type addKeysRequest struct {
	Text             string   `json:"text"`
	Keys             []string `json:"keys"`
	Enabled          *bool    `json:"enabled"`
	Note             string   `json:"note"`
	LabelPrefix      string   `json:"label_prefix"`
	ExpectedEmail    string   `json:"expected_email"`
	AnthropicModel   string   `json:"anthropic_model"`
	FireworksModel   string   `json:"fireworks_model"`
	FireworksBaseURL string   `json:"fireworks_base_url"`
}

func (req addKeysRequest) input(model, baseURL string) accounts.AddKeysInput {
	return accounts.AddKeysInput{
		Text:          req.Text,
		Keys:          req.Keys,
		Enabled:       enabledOrDefault(req.Enabled),
		Note:          req.Note,
		LabelPrefix:   req.LabelPrefix,
		ExpectedEmail: req.ExpectedEmail,
		Model:         model,
		BaseURL:       baseURL,
	}
}

type noteRequest struct {
	Label     string `json:"label"`
	Note      string `json:"note"`
	Append    string `json:"append"`
	Separator string `json:"separator"`
	Replace   bool   `json:"replace"`
}

type patchRequest struct {
	Label string `json:"label"`
	accounts.Patch
}

type removeRequest struct {
	Labels          []string `json:"labels"`
	Label           string   `json:"label"`
	DeleteLocalData bool     `json:"delete_local_data"`
}

func enabledOrDefault(v *bool) bool {
	return v == nil || *v
}

// PushRegistryHandler pushes the current inventory to the sink.
func PushRegistryHandler(push Pusher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := push.PushInventory(r.Context()); err != nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// AddAccountsHandler adds codex subscription accounts by email.
func AddAccountsHandler(reg *accounts.Registry, push Pusher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addAccountsRequest
		if !decodeOrReject(w, r, &req) {
			return
		}
		res, err := reg.AddCodexAccounts(accounts.AddCodexInput{
			Text:             req.Text,
			Emails:           req.Emails,
			ExpectedPlanType: req.ExpectedPlanType,
			Enabled:          enabledOrDefault(req.Enabled),
		})
		respondEdit(w, r, push, err, func() any { return addResponse(res) })
	}
}

// AddAnthropicKeysHandler adds Anthropic API-key accounts.
func AddAnthropicKeysHandler(reg *accounts.Registry, push Pusher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addKeysRequest
		if !decodeOrReject(w, r, &req) {
			return
		}
		res, err := reg.AddAnthropicKeys(req.input(req.AnthropicModel, ""))
		respondEdit(w, r, push, err, func() any { return addResponse(res) })
	}
}

// AddFireworksKeysHandler adds Fireworks API-key accounts.
func AddFireworksKeysHandler(reg *accounts.Registry, push Pusher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addKeysRequest
		if !decodeOrReject(w, r, &req) {
			return
		}
		res, err := reg.AddFireworksKeys(req.input(req.FireworksModel, req.FireworksBaseURL))
		respondEdit(w, r, push, err, func() any { return addResponse(res) })
	}
}

// SetNoteHandler sets or clears an account note.
func SetNoteHandler(reg *accounts.Registry, push Pusher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req noteRequest
		if !decodeOrReject(w, r, &req) {
			return
		}
		note, err := reg.SetNote(req.Label, req.Note)
		respondEdit(w, r, push, err, func() any {
			return map[string]any{"ok": true, "label": req.Label, "note": note}
		})
	}
}

// AppendNoteHandler appends to an account note.
func AppendNoteHandler(reg *accounts.Registry, push Pusher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req noteRequest
		if !decodeOrReject(w, r, &req) {
			return
		}
		note, err := reg.AppendNote(req.Label, req.Append, req.Separator, req.Replace)
		respondEdit(w, r, push, err, func() any {
			return map[string]any{"ok": true, "label": req.Label, "note": note}
		})
	}
}

// PatchAccountHandler changes selected fields of one account.
func PatchAccountHandler(reg *accounts.Registry, push Pusher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req patchRequest
		if !decodeOrReject(w, r, &req) {
			return
		}
		changed, err := reg.Patch(req.Label, req.Patch)
		respondEdit(w, r, push, err, func() any {
			return map[string]any{"ok": true, "label": req.Label, "changed": changed}
		})
	}
}

// RemoveAccountsHandler removes accounts and optionally their local homes.
func RemoveAccountsHandler(reg *accounts.Registry, push Pusher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req removeRequest
		if !decodeOrReject(w, r, &req) {
			return
		}
		labels := req.Labels
		if req.Label != "" {
			labels = append(labels, req.Label)
		}
		res, err := reg.Remove(labels, req.DeleteLocalData)
		respondEdit(w, r, push, err, func() any {
			return struct {
				OK bool `json:"ok"`
				*accounts.RemoveResult
			}{true, res}
		})
	}
}

func addResponse(res *accounts.AddResult) any {
	return struct {
		OK bool `json:"ok"`
		*accounts.AddResult
	}{true, res}
}

func decodeOrReject(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeBody(r, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// respondEdit finishes a config edit: it maps the edit error, pushes the new
// inventory and writes the response built by body.
func respondEdit(w http.ResponseWriter, r *http.Request, push Pusher, err error, body func() any) {
	if err != nil {
		writeError(w, configStatus(err), err.Error())
		return
	}
	if err := push.PushInventory(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, "failed to push registry: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, body())
}
