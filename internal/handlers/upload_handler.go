package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"qalam-backend/internal/storage"
	"qalam-backend/pkg/api"
	appErrors "qalam-backend/pkg/errors"
)

// UploadHandler hands out presigned S3 URLs.
type UploadHandler struct {
	storage *storage.Service
	logger  *zap.Logger
}

// NewUploadHandler creates an upload handler.
func NewUploadHandler(storageService *storage.Service, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{storage: storageService, logger: logger}
}

// PresignedURL handles POST /upload/presigned-url for the caller.
func (h *UploadHandler) PresignedURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req api.UploadURLRequest
	if !decodeBody(w, r, &req) {
		return
	}
	upload, err := h.storage.UploadURL(r.Context(), userID, req.FileName, req.ContentType)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, uploadResponse(upload))
}

// SignupURL handles POST /upload/signup, used for avatars chosen before the
// account exists.
func (h *UploadHandler) SignupURL(w http.ResponseWriter, r *http.Request) {
	var req api.UploadURLRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		handleServiceError(w, r, h.logger, appErrors.NewValidation("username is required"))
		return
	}
	upload, err := h.storage.SignupUploadURL(r.Context(), req.Username, req.FileName, req.ContentType)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, uploadResponse(upload))
}

// RefreshURL handles POST /upload/refresh-url.
func (h *UploadHandler) RefreshURL(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireCaller(w, r); !ok {
		return
	}
	var req api.RefreshURLRequest
	if !decodeBody(w, r, &req) {
		return
	}
	url, err := h.storage.RefreshURL(r.Context(), req.FileKey)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.RefreshURLResponse{Success: true, SignedURL: url})
}

// SignedURL handles GET /signed-url/*, signing the key in the path tail.
func (h *UploadHandler) SignedURL(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireCaller(w, r); !ok {
		return
	}
	url, err := h.storage.RefreshURL(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, api.SignedURLResponse{URL: url})
}

func uploadResponse(u *storage.Upload) api.UploadURLResponse {
	return api.UploadURLResponse{
		UploadURL: u.UploadURL,
		FileKey:   u.Key,
		PublicURL: u.PublicURL,
		SignedURL: u.SignedURL,
	}
}
