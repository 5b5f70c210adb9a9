package handlers

import (
	"context"
	"net/http"

	"github.com/pysugar/codex-status-fleet/internal/accounts"
	"github.com/pysugar/codex-status-fleet/internal/refresh"
)

// StateSource reports the last recorded state per account label.
type StateSource interface {
	LatestStates(ctx context.Context) map[string]string
}

type accountView struct {
	accounts.Descriptor
	LastState string `json:"last_state,omitempty"`
}

// AccountsHandler lists every configured account, disabled ones included.
// states may be nil.
func AccountsHandler(reg *accounts.Registry, guard *refresh.Guard, states StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accs, err := reg.Load("", true)
		if err != nil {
			writeError(w, configStatus(err), err.Error())
			return
		}

		var last map[string]string
		if states != nil {
			last = states.LatestStates(r.Context())
		}
		views := make([]accountView, 0, len(accs))
		for _, acc := range accs {
			views = append(views, accountView{Descriptor: acc, LastState: last[acc.Label]})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"running":  guard.Running(),
			"count":    len(views),
			"accounts": views,
		})
	}
}
