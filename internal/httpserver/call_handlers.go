package httpserver

import (
	"log/slog"
	"net/http"

	"zchat-signal/internal/domain"
)

const (
	defaultCallHistory = 50
	maxCallHistory     = 500
)

// @Summary      Call history
// @Description  Finished and ongoing calls the user took part in, newest first
// @Tags         calls
// @Security     BearerAuth
// @Produce      json
// @Param        limit  query  int  false  "Maximum number of records"
// @Success      200  {array}   domain.CallRecord
// @Failure      401  {object}  map[string]string
// @Router       /calls [get]
func handleListCalls(calls domain.CallRepository, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		limit, err := queryLimit(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		switch {
		case limit == 0:
			limit = defaultCallHistory
		case limit > maxCallHistory:
			limit = maxCallHistory
		}
		records, err := calls.ListForUser(r.Context(), user.ID, limit)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		if records == nil {
			records = []*domain.CallRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}
