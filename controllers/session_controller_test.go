package controllers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/anyrate/middleware"
	"github.com/cppla/anyrate/models"
)

func newSessionRouter(db *gorm.DB) *gin.Engine {
	sc := NewSessionController(db)
	r := gin.New()
	r.POST("/api/session/anonymous", sc.Anonymous)
	r.GET("/api/session/me", middleware.SessionRequired(), sc.Me)
	r.POST("/api/session/logout", middleware.SessionRequired(), sc.Logout)
	r.GET("/api/session/google/callback", sc.GoogleCallback)
	return r
}

func TestAnonymousSession(t *testing.T) {
	db := newTestDB(t)
	router := newSessionRouter(db)

	w := doJSON(t, router, http.MethodPost, "/api/session/anonymous", "", nil)
	mustStatus(t, w, http.StatusOK)
	resp := decodeEnvelope(t, w)
	data, _ := resp.Data.(map[string]interface{})

	token, _ := data["token"].(string)
	visitorID, _ := data["visitor_id"].(string)
	if token == "" || visitorID == "" {
		t.Fatal("expected token and visitor_id in response")
	}

	var visitor models.Visitor
	if err := db.First(&visitor, "id = ?", visitorID).Error; err != nil {
		t.Fatalf("visitor row missing: %v", err)
	}
	if visitor.Provider != "anonymous" {
		t.Errorf("expected anonymous provider, got %q", visitor.Provider)
	}

	// The issued token authenticates follow-up requests.
	w = doJSON(t, router, http.MethodGet, "/api/session/me", token, nil)
	mustStatus(t, w, http.StatusOK)
	me := decodeEnvelope(t, w)
	meData, _ := me.Data.(map[string]interface{})
	if got, _ := meData["visitor_id"].(string); got != visitorID {
		t.Errorf("me returned %q, want %q", got, visitorID)
	}
}

func TestTwoAnonymousSessionsAreDistinct(t *testing.T) {
	db := newTestDB(t)
	router := newSessionRouter(db)

	ids := map[string]bool{}
	for i := 0; i < 2; i++ {
		w := doJSON(t, router, http.MethodPost, "/api/session/anonymous", "", nil)
		mustStatus(t, w, http.StatusOK)
		resp := decodeEnvelope(t, w)
		data, _ := resp.Data.(map[string]interface{})
		id, _ := data["visitor_id"].(string)
		ids[id] = true
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 distinct visitor ids, got %d", len(ids))
	}
}

func TestSessionLogoutRevokes(t *testing.T) {
	db := newTestDB(t)
	router := newSessionRouter(db)

	w := doJSON(t, router, http.MethodPost, "/api/session/anonymous", "", nil)
	mustStatus(t, w, http.StatusOK)
	resp := decodeEnvelope(t, w)
	data, _ := resp.Data.(map[string]interface{})
	token, _ := data["token"].(string)

	w = doJSON(t, router, http.MethodPost, "/api/session/logout", token, nil)
	mustStatus(t, w, http.StatusOK)

	w = doJSON(t, router, http.MethodGet, "/api/session/me", token, nil)
	mustStatus(t, w, http.StatusUnauthorized)
}

func TestGoogleCallbackRejectsUnknownState(t *testing.T) {
	router := newSessionRouter(newTestDB(t))
	w := doJSON(t, router, http.MethodGet, "/api/session/google/callback?state=forged&code=abc", "", nil)
	mustStatus(t, w, http.StatusBadRequest)
}
