package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"qalam-backend/internal/domain"
	"qalam-backend/internal/service/users"
	"qalam-backend/pkg/api"
)

// UserHandler serves profiles, avatars, friends and account deletion.
type UserHandler struct {
	users  *users.Service
	logger *zap.Logger
}

// NewUserHandler creates a user handler.
func NewUserHandler(userService *users.Service, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: userService, logger: logger}
}

// Me handles GET /profile.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.UserResponse{User: user})
}

// ProfilePictureURL handles GET /profile-picture-url.
func (h *UserHandler) ProfilePictureURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	url, err := h.users.AvatarURL(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	resp := api.ProfilePictureResponse{}
	if url != "" {
		resp.ProfilePictureURL = &url
	}
	api.Success(w, http.StatusOK, resp)
}

// List handles GET /users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	list, err := h.users.ListUsers(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.UsersResponse{Users: list})
}

// Profile handles GET /users/profile/{username}.
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.users.GetProfile(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.ProfileResponse{User: profile.User, Friends: profile.Friends})
}

// ProfileFriends handles GET /users/profile/{username}/friends.
func (h *UserHandler) ProfileFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := h.users.ListFriendsByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.FriendsResponse{Friends: friends})
}

// UpdateAvatar handles PUT /users/profile/avatar.
func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req api.UpdateAvatarRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := h.users.UpdateAvatar(r.Context(), userID, req.AvatarURL)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.UserResponse{
		Message: "Profile picture updated successfully",
		User:    user.Summary(),
	})
}

// Delete handles DELETE /users/delete. It answers 200 when everything was
// removed and 202 when the cleanup continues in the background.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	job, err := h.users.DeleteUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	status, message := http.StatusOK, "Account deleted successfully"
	if job.Status != domain.CascadeCompleted {
		status, message = http.StatusAccepted, "Account deletion is in progress"
	}
	api.Success(w, status, api.DeleteUserResponse{
		Message: message,
		JobID:   job.ID,
		Status:  string(job.Status),
	})
}

// Friends handles GET /users/friends.
func (h *UserHandler) Friends(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	friends, err := h.users.ListFriends(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.FriendsResponse{Friends: friends})
}

// AddFriend handles POST /users/friends/add/{friendId}.
func (h *UserHandler) AddFriend(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	friendID := chi.URLParam(r, "friendId")
	changed, err := h.users.AddFriend(r.Context(), userID, friendID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	message := "Friend added successfully"
	if !changed {
		message = "Already friends"
	}
	api.Success(w, http.StatusOK, api.FriendChangeResponse{Message: message, FriendID: friendID, Changed: changed})
}

// RemoveFriend handles DELETE /users/friends/remove/{friendId}.
func (h *UserHandler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	friendID := chi.URLParam(r, "friendId")
	changed, err := h.users.RemoveFriend(r.Context(), userID, friendID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	message := "Friend removed successfully"
	if !changed {
		message = "Not friends"
	}
	api.Success(w, http.StatusOK, api.FriendChangeResponse{Message: message, FriendID: friendID, Changed: changed})
}

// CheckFriend handles GET /users/friends/check/{friendId}.
func (h *UserHandler) CheckFriend(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	isFriend, err := h.users.IsFriend(r.Context(), userID, chi.URLParam(r, "friendId"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.FriendStatusResponse{IsFriend: isFriend})
}
