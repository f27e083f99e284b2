package httpserver

import (
	"log/slog"
	"net/http"

	"zchat-signal/internal/service"
)

// @Summary      List conversations
// @Description  The user's conversations with their participants, most recent first
// @Tags         conversations
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   service.ConversationView
// @Failure      401  {object}  map[string]string
// @Router       /conversations [get]
func handleListConversations(msgSvc *service.MessageService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		currentUser := CurrentUser(r)
		if currentUser == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		convs, err := msgSvc.Conversations(r.Context(), currentUser.ID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, convs)
	}
}
