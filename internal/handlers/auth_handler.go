package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"qalam-backend/internal/auth"
	"qalam-backend/internal/domain"
	"qalam-backend/internal/service/users"
	"qalam-backend/pkg/api"
	appErrors "qalam-backend/pkg/errors"
)

// AuthHandler serves signup, login and the OAuth redirects.
type AuthHandler struct {
	users         *users.Service
	tokens        *auth.TokenService
	providers     map[string]auth.OAuthProvider
	frontendURL   string
	secureCookies bool
	logger        *zap.Logger
}

// NewAuthHandler creates an auth handler. Providers that are not
// configured are simply left out of providers.
func NewAuthHandler(
	userService *users.Service,
	tokens *auth.TokenService,
	providers []auth.OAuthProvider,
	frontendURL string,
	secureCookies bool,
	logger *zap.Logger,
) *AuthHandler {
	byName := make(map[string]auth.OAuthProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &AuthHandler{
		users:         userService,
		tokens:        tokens,
		providers:     byName,
		frontendURL:   frontendURL,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// Signup handles POST /auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req api.SignupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, err := h.users.Register(r.Context(), users.RegisterRequest{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FullName:  req.FullName,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	resp, err := h.authResponse(user)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	resp.Message = "User created successfully"
	api.Success(w, http.StatusCreated, resp)
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	identifier := req.Username
	if identifier == "" {
		identifier = req.Identifier
	}

	user, err := h.users.Authenticate(r.Context(), identifier, req.Password)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	resp, err := h.authResponse(user)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, resp)
}

// OAuthStart handles GET /auth/{provider} by redirecting to the provider's
// consent page.
func (h *AuthHandler) OAuthStart(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}
	state, err := auth.NewState()
	if err != nil {
		handleServiceError(w, r, h.logger, appErrors.NewInternal("failed to create oauth state", err))
		return
	}
	auth.SetStateCookie(w, state, h.secureCookies)
	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
}

// OAuthCallback handles GET /auth/{provider}/callback. On success it
// redirects to the frontend with the token and a user summary in the query.
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}
	if !auth.VerifyState(w, r) {
		api.ErrorWithCode(w, http.StatusBadRequest, string(appErrors.ErrorTypeValidation), "invalid oauth state")
		return
	}
	if reason := r.URL.Query().Get("error"); reason != "" {
		h.logger.Info("OAuth sign-in declined",
			zap.String("provider", provider.Name()),
			zap.String("reason", reason))
		h.redirectToFrontend(w, r, url.Values{"error": {reason}})
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		api.ErrorWithCode(w, http.StatusBadRequest, string(appErrors.ErrorTypeValidation), "missing authorization code")
		return
	}

	profile, err := provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("OAuth exchange failed",
			zap.String("provider", provider.Name()),
			zap.Error(err))
		h.redirectToFrontend(w, r, url.Values{"error": {"oauth_failed"}})
		return
	}

	user, err := h.users.FindOrCreateOAuthUser(r.Context(), profile)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	resp, err := h.authResponse(user)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	userJSON, err := json.Marshal(resp.User)
	if err != nil {
		handleServiceError(w, r, h.logger, appErrors.NewInternal("failed to encode user", err))
		return
	}
	h.redirectToFrontend(w, r, url.Values{
		"token": {resp.Token},
		"user":  {string(userJSON)},
	})
}

func (h *AuthHandler) provider(w http.ResponseWriter, r *http.Request) (auth.OAuthProvider, bool) {
	name := chi.URLParam(r, "provider")
	p, ok := h.providers[name]
	if !ok {
		api.ErrorWithCode(w, http.StatusNotFound, string(appErrors.ErrorTypeNotFound), name+" sign-in is not configured")
	}
	return p, ok
}

func (h *AuthHandler) redirectToFrontend(w http.ResponseWriter, r *http.Request, query url.Values) {
	target, err := url.Parse(h.frontendURL)
	if err != nil {
		handleServiceError(w, r, h.logger, appErrors.NewInternal("invalid frontend url", err))
		return
	}
	target.RawQuery = query.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (h *AuthHandler) authResponse(user *domain.User) (*api.AuthResponse, error) {
	token, err := h.tokens.Generate(user.ID, user.Username)
	if err != nil {
		return nil, appErrors.NewInternal("failed to issue token", err)
	}
	return &api.AuthResponse{Token: token, User: api.NewAuthUser(user)}, nil
}
