package handlers

import (
	"net/http"
	"time"
)

type quotaResponse struct {
	Allotted       int    `json:"allotted"`
	UsedSinceReset int    `json:"used_since_reset"`
	Remaining      int    `json:"remaining"`
	Exhausted      bool   `json:"exhausted"`
	ResetAt        string `json:"reset_at"`
}

// QuotaStatus recomputes and returns the project's remaining allowance.
func (a *App) QuotaStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Quota.Check(r.Context(), a.ProjectID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("http: quota check failed")
		a.error(w, http.StatusInternalServerError, "quota unavailable")
		return
	}
	a.json(w, http.StatusOK, quotaResponse{
		Allotted:       snap.Allotted,
		UsedSinceReset: snap.UsedSinceReset,
		Remaining:      snap.Remaining,
		Exhausted:      snap.Exhausted(),
		ResetAt:        snap.ResetAt.UTC().Format(time.RFC3339),
	})
}
