package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/oauth2/github"
)

const (
	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"
	googleUserURL   = "https://openidconnect.googleapis.com/v1/userinfo"

	stateCookieName = "oauth_state"
	stateCookieTTL  = 10 * time.Minute
)

// ErrNoEmail is returned when the provider does not disclose an email.
var ErrNoEmail = errors.New("auth: provider returned no email address")

// OAuthProfile is the identity a provider vouches for.
type OAuthProfile struct {
	Provider   string
	ProviderID string
	Username   string
	Email      string
	FullName   string
	AvatarURL  string
}

// OAuthProvider runs the authorization code flow against one provider.
type OAuthProvider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*OAuthProfile, error)
}

// CodeFlow is an OAuthProvider backed by an oauth2.Config and a userinfo
// endpoint.
type CodeFlow struct {
	name    string
	config  *oauth2.Config
	profile func(ctx context.Context, client *http.Client) (*OAuthProfile, error)
}

func (f *CodeFlow) Name() string { return f.name }

func (f *CodeFlow) AuthCodeURL(state string) string {
	return f.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for a token and fetches the
// user's profile with it.
func (f *CodeFlow) Exchange(ctx context.Context, code string) (*OAuthProfile, error) {
	token, err := f.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging %s code: %w", f.name, err)
	}
	p, err := f.profile(ctx, f.config.Client(ctx, token))
	if err != nil {
		return nil, err
	}
	p.Provider = f.name
	if p.Email == "" {
		return nil, ErrNoEmail
	}
	if p.Username == "" {
		p.Username = strings.Split(p.Email, "@")[0]
	}
	if p.FullName == "" {
		p.FullName = p.Username
	}
	return p, nil
}

// NewGitHubProvider returns the GitHub code flow.
func NewGitHubProvider(clientID, clientSecret, redirectURL string) *CodeFlow {
	return newGitHubFlow(&oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"read:user", "user:email"},
		Endpoint:     github.Endpoint,
	}, githubUserURL, githubEmailsURL)
}

func newGitHubFlow(cfg *oauth2.Config, userURL, emailsURL string) *CodeFlow {
	return &CodeFlow{
		name:   "github",
		config: cfg,
		profile: func(ctx context.Context, client *http.Client) (*OAuthProfile, error) {
			var u struct {
				ID        int64  `json:"id"`
				Login     string `json:"login"`
				Name      string `json:"name"`
				Email     string `json:"email"`
				AvatarURL string `json:"avatar_url"`
			}
			if err := getJSON(ctx, client, userURL, &u); err != nil {
				return nil, err
			}
			if u.ID == 0 {
				return nil, errors.New("auth: GitHub returned an invalid user")
			}

			email := u.Email
			if email == "" {
				// Users with a private email only expose it on /user/emails.
				var emails []struct {
					Email    string `json:"email"`
					Primary  bool   `json:"primary"`
					Verified bool   `json:"verified"`
				}
				if err := getJSON(ctx, client, emailsURL, &emails); err == nil {
					for _, e := range emails {
						if e.Primary && e.Verified {
							email = e.Email
							break
						}
					}
				}
			}

			return &OAuthProfile{
				ProviderID: strconv.FormatInt(u.ID, 10),
				Username:   u.Login,
				Email:      email,
				FullName:   u.Name,
				AvatarURL:  u.AvatarURL,
			}, nil
		},
	}
}

// NewGoogleProvider returns the Google code flow. Google accounts have no
// username; it is derived from the email.
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *CodeFlow {
	return newGoogleFlow(&oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     endpoints.Google,
	}, googleUserURL)
}

func newGoogleFlow(cfg *oauth2.Config, userURL string) *CodeFlow {
	return &CodeFlow{
		name:   "google",
		config: cfg,
		profile: func(ctx context.Context, client *http.Client) (*OAuthProfile, error) {
			var u struct {
				Sub     string `json:"sub"`
				Name    string `json:"name"`
				Email   string `json:"email"`
				Picture string `json:"picture"`
			}
			if err := getJSON(ctx, client, userURL, &u); err != nil {
				return nil, err
			}
			if u.Sub == "" {
				return nil, errors.New("auth: Google returned an invalid user")
			}
			return &OAuthProfile{
				ProviderID: u.Sub,
				Email:      u.Email,
				FullName:   u.Name,
				AvatarURL:  u.Picture,
			}, nil
		},
	}
}

func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("auth: calling %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: %s returned status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("auth: decoding %s response: %w", url, err)
	}
	return nil
}

// NewState returns a random state value for the code flow.
func NewState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// SetStateCookie stores state in a short-lived HttpOnly cookie.
func SetStateCookie(w http.ResponseWriter, state string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// VerifyState checks the state query parameter against the cookie and
// clears the cookie. A state can be used once.
func VerifyState(w http.ResponseWriter, r *http.Request) bool {
	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
	})
	return r.URL.Query().Get("state") == cookie.Value
}
