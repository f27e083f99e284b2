package httpserver

import (
	"log/slog"
	"net/http"

	"zchat-signal/internal/service"
)

// @Summary      List friends
// @Description  Authoritative friend list, re-fetched after a friends invalidation
// @Tags         friends
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   domain.User
// @Failure      401  {object}  map[string]string
// @Router       /friends [get]
func handleListFriends(socialSvc *service.SocialService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		friends, err := socialSvc.Friends(r.Context(), user.ID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, friends)
	}
}

// @Summary      List friend requests
// @Description  Pending requests the user sent or received
// @Tags         friends
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   domain.FriendRequest
// @Failure      401  {object}  map[string]string
// @Router       /friends/requests [get]
func handleListFriendRequests(socialSvc *service.SocialService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		reqs, err := socialSvc.Requests(r.Context(), user.ID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, reqs)
	}
}
