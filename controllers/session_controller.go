package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/cppla/anyrate/config"
	"github.com/cppla/anyrate/middleware"
	"github.com/cppla/anyrate/models"
	"github.com/cppla/anyrate/utils"
)

// Visitor sessions last a month; the identity behind an anonymous session is
// worthless after that anyway.
const sessionDuration = 30 * 24 * time.Hour

// SessionController issues visitor identities. Everyone gets one: anonymous
// visitors a throwaway UUID, Google visitors a stable ID keyed on the OAuth
// subject so their history survives re-login.
type SessionController struct {
	db *gorm.DB
}

func NewSessionController(db *gorm.DB) *SessionController {
	return &SessionController{db: db}
}

// Anonymous creates a fresh anonymous visitor and returns its session token.
func (sc *SessionController) Anonymous(c *gin.Context) {
	visitor := models.Visitor{
		ID:       "anon-" + uuid.NewString(),
		Provider: "anonymous",
	}
	if err := sc.db.Create(&visitor).Error; err != nil {
		utils.Sugar.Errorf("create anonymous visitor: %v", err)
		utils.Error(c, http.StatusInternalServerError, "could not create session")
		return
	}

	token, err := utils.GenerateToken(visitor.ID, visitor.Provider, false, sessionDuration)
	if err != nil {
		utils.Sugar.Errorf("sign session token: %v", err)
		utils.Error(c, http.StatusInternalServerError, "could not create session")
		return
	}

	utils.Success(c, gin.H{
		"token":      token,
		"visitor_id": visitor.ID,
		"provider":   visitor.Provider,
	})
}

func (sc *SessionController) googleOAuthConfig() *oauth2.Config {
	cfg := config.Get()
	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.OAuthRedirectBase + "/api/session/google/callback",
		Scopes:       []string{"openid", "email"},
		Endpoint:     google.Endpoint,
	}
}

// GoogleRedirect starts the OAuth flow.
func (sc *SessionController) GoogleRedirect(c *gin.Context) {
	conf := sc.googleOAuthConfig()
	if conf.ClientID == "" {
		utils.Error(c, http.StatusServiceUnavailable, "google sign-in is not configured")
		return
	}
	state := uuid.NewString()
	utils.SaveState(state, 10*time.Minute)
	c.Redirect(http.StatusFound, conf.AuthCodeURL(state))
}

type googleUserInfo struct {
	Sub   string `json:"sub"`
	ID    string `json:"id"`
	Email string `json:"email"`
}

// GoogleCallback finishes the OAuth flow and issues a session token for the
// visitor bound to the Google subject.
func (sc *SessionController) GoogleCallback(c *gin.Context) {
	state := c.Query("state")
	if state == "" || !utils.ConsumeState(state) {
		utils.Error(c, http.StatusBadRequest, "invalid or expired oauth state")
		return
	}
	code := c.Query("code")
	if code == "" {
		utils.Error(c, http.StatusBadRequest, "missing authorization code")
		return
	}

	conf := sc.googleOAuthConfig()
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		utils.Sugar.Warnf("oauth code exchange failed: %v", err)
		utils.Error(c, http.StatusBadGateway, "could not complete sign-in")
		return
	}

	info, err := fetchGoogleUserInfo(ctx, conf, tok)
	if err != nil {
		utils.Sugar.Warnf("oauth userinfo fetch failed: %v", err)
		utils.Error(c, http.StatusBadGateway, "could not complete sign-in")
		return
	}
	subject := info.Sub
	if subject == "" {
		subject = info.ID
	}
	if subject == "" {
		utils.Error(c, http.StatusBadGateway, "identity provider returned no subject")
		return
	}

	visitor, err := sc.findOrCreateGoogleVisitor(subject, info.Email)
	if err != nil {
		utils.Sugar.Errorf("persist google visitor: %v", err)
		utils.Error(c, http.StatusInternalServerError, "could not create session")
		return
	}

	token, err := utils.GenerateToken(visitor.ID, visitor.Provider, false, sessionDuration)
	if err != nil {
		utils.Sugar.Errorf("sign session token: %v", err)
		utils.Error(c, http.StatusInternalServerError, "could not create session")
		return
	}

	utils.Success(c, gin.H{
		"token":      token,
		"visitor_id": visitor.ID,
		"provider":   visitor.Provider,
	})
}

func fetchGoogleUserInfo(ctx context.Context, conf *oauth2.Config, tok *oauth2.Token) (*googleUserInfo, error) {
	client := conf.Client(ctx, tok)
	resp, err := client.Get("https://www.googleapis.com/oauth2/v3/userinfo")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("userinfo endpoint returned " + resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (sc *SessionController) findOrCreateGoogleVisitor(subject, email string) (*models.Visitor, error) {
	var visitor models.Visitor
	err := sc.db.Where("provider = ? AND subject = ?", "google", subject).First(&visitor).Error
	if err == nil {
		return &visitor, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	visitor = models.Visitor{
		ID:       "goog-" + uuid.NewString(),
		Provider: "google",
		Subject:  subject,
		Email:    email,
	}
	if err := sc.db.Create(&visitor).Error; err != nil {
		return nil, err
	}
	return &visitor, nil
}

// Me returns the identity behind the presented session token.
func (sc *SessionController) Me(c *gin.Context) {
	visitorID := middleware.VisitorID(c)
	provider, _ := c.Get(middleware.ContextProviderKey)
	utils.Success(c, gin.H{
		"visitor_id": visitorID,
		"provider":   provider,
	})
}

// Logout revokes the presented token for its remaining lifetime.
func (sc *SessionController) Logout(c *gin.Context) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) {
		utils.Error(c, http.StatusBadRequest, "missing bearer token")
		return
	}
	token := header[len(prefix):]

	claims, err := utils.ParseToken(token)
	if err != nil {
		utils.Error(c, http.StatusUnauthorized, "invalid token")
		return
	}
	utils.BlacklistToken(token, claims.ExpiresAt.Time)
	utils.Success(c, gin.H{"message": "logged out"})
}
