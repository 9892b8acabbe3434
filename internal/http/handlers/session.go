package handlers

import "net/http"

// CurrentSession returns the latest generation request: id, status,
// progress estimate and the backend transcript. 404 before the first run.
func (a *App) CurrentSession(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.Sessions.Current()
	if !ok {
		a.error(w, http.StatusNotFound, "no session yet")
		return
	}
	a.json(w, http.StatusOK, snap)
}
