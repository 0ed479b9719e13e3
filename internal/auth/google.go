package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"cloudvault-backend/internal/session"
	"cloudvault-backend/internal/shared/server/respond"
	"cloudvault-backend/internal/shared/telemetry"
)

const (
	stateTTL       = 5 * time.Minute
	maxStates      = 4096
	userInfoURL    = "https://www.googleapis.com/oauth2/v2/userinfo"
	googleIDPrefix = "google:"
)

// GoogleConfig configures the login flow.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	UIRedirect   string
	CookieName   string
	SecureCookie bool
}

// GoogleService handles Google OAuth login and issues local sessions.
type GoogleService struct {
	oauthConfig *oauth2.Config
	cfg         GoogleConfig
	issuer      *session.LocalIssuer
	states      *expirable.LRU[string, struct{}]
	userInfo    func(ctx context.Context, token *oauth2.Token) (googleUserInfo, error)
}

// NewGoogleService builds a GoogleService. issuer may be nil, in which case
// the callback fails with auth_not_configured.
func NewGoogleService(cfg GoogleConfig, issuer *session.LocalIssuer) *GoogleService {
	s := &GoogleService{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		cfg:    cfg,
		issuer: issuer,
		states: expirable.NewLRU[string, struct{}](maxStates, nil, stateTTL),
	}
	s.userInfo = s.fetchUserInfo
	return s
}

// RegisterRoutes attaches Google auth routes.
func (s *GoogleService) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/auth/google/start", s.start)
	rg.GET("/auth/google/callback", s.callback)
	rg.POST("/auth/logout", s.logout)
}

func (s *GoogleService) configured() bool {
	return s.oauthConfig.ClientID != "" && s.oauthConfig.ClientSecret != "" && s.oauthConfig.RedirectURL != "" && s.issuer != nil
}

func (s *GoogleService) start(c *gin.Context) {
	if !s.configured() {
		respond.Error(c, http.StatusInternalServerError, "auth_not_configured", "Google auth not configured", nil)
		return
	}

	state := uuid.NewString()
	s.states.Add(state, struct{}{})
	c.Redirect(http.StatusFound, s.oauthConfig.AuthCodeURL(state))
}

func (s *GoogleService) callback(c *gin.Context) {
	if !s.configured() {
		respond.Error(c, http.StatusInternalServerError, "auth_not_configured", "Google auth not configured", nil)
		return
	}
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "missing state or code", nil)
		return
	}
	if _, ok := s.states.Peek(state); !ok {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "invalid or expired state", nil)
		return
	}
	s.states.Remove(state)

	ctx := c.Request.Context()
	token, err := s.oauthConfig.Exchange(ctx, code)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "invalid_request", "failed to exchange code", nil)
		return
	}

	info, err := s.userInfo(ctx, token)
	if err != nil || info.Sub == "" {
		telemetry.Warn("auth.google_userinfo_failed", map[string]any{"err": err})
		respond.Error(c, http.StatusBadGateway, "auth_failed", "failed to fetch user profile", nil)
		return
	}

	s.finishLogin(c, session.Principal{
		UserID:  googleIDPrefix + info.Sub,
		Email:   info.Email,
		Name:    info.Name,
		Picture: info.Picture,
	})
}

// finishLogin issues the local session cookie and sends the browser back to the UI.
func (s *GoogleService) finishLogin(c *gin.Context, p session.Principal) {
	signed, err := s.issuer.Issue(p)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to issue session", nil)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cfg.CookieName, signed, int(s.issuer.TTL().Seconds()), "/", "", s.cfg.SecureCookie, true)
	telemetry.Info("auth.login", map[string]any{"user_id": p.UserID, "scheme": string(session.SchemeLocal)})

	target := s.cfg.UIRedirect
	if target == "" {
		target = "/"
	}
	c.Redirect(http.StatusFound, target)
}

func (s *GoogleService) logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(s.cfg.CookieName, "", -1, "/", "", s.cfg.SecureCookie, true)
	respond.NoContent(c)
}

type googleUserInfo struct {
	Sub     string `json:"sub"`
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (s *GoogleService) fetchUserInfo(ctx context.Context, token *oauth2.Token) (googleUserInfo, error) {
	client := s.oauthConfig.Client(ctx, token)
	resp, err := client.Get(userInfoURL)
	if err != nil {
		return googleUserInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return googleUserInfo{}, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return googleUserInfo{}, err
	}

	// The v2 endpoint returns "id" rather than "sub".
	if info.Sub == "" {
		info.Sub = info.ID
	}
	return info, nil
}
