package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/anyrate/middleware"
	"github.com/cppla/anyrate/models"
	"github.com/cppla/anyrate/services"
)

func newItemRouter(db *gorm.DB) *gin.Engine {
	intake := services.NewIntakeService(db, passOracle{}, false)
	rating := services.NewRatingService(db)
	live := services.NewLiveHub()
	ic := NewItemController(db, intake, rating, live)

	r := gin.New()
	r.GET("/api/items", ic.List)
	r.GET("/api/items/:id", ic.Get)
	r.POST("/api/items", middleware.SessionRequired(), ic.Create)
	r.POST("/api/items/:id/rate", middleware.SessionRequired(), ic.Rate)
	r.POST("/api/items/:id/report", middleware.SessionRequired(), ic.Report)
	return r
}

func TestCreateItemRequiresSession(t *testing.T) {
	router := newItemRouter(newTestDB(t))
	w := doJSON(t, router, http.MethodPost, "/api/items", "", gin.H{
		"name": "x", "description": "y", "category": "Other",
	})
	mustStatus(t, w, http.StatusUnauthorized)
}

func TestCreateAndListItems(t *testing.T) {
	db := newTestDB(t)
	router := newItemRouter(db)
	token := sessionToken(t, "visitor-list-1")

	for i, name := range []string{"Rainy days", "Fresh bread", "Traffic"} {
		w := doJSON(t, router, http.MethodPost, "/api/items", token, gin.H{
			"name":        name,
			"description": fmt.Sprintf("thing %d", i),
			"category":    "Concepts",
		})
		mustStatus(t, w, http.StatusOK)
	}

	// Hand-set aggregates so ordering is observable.
	db.Model(&models.Item{}).Where("name = ?", "Fresh bread").
		Updates(map[string]interface{}{"average_rating": 4.5, "rating_count": 10})
	db.Model(&models.Item{}).Where("name = ?", "Rainy days").
		Updates(map[string]interface{}{"average_rating": 2.0, "rating_count": 4})

	w := doJSON(t, router, http.MethodGet, "/api/items", "", nil)
	mustStatus(t, w, http.StatusOK)
	resp := decodeEnvelope(t, w)

	data, _ := resp.Data.(map[string]interface{})
	raw, _ := json.Marshal(data["items"])
	var items []models.Item
	if err := json.Unmarshal(raw, &items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Name != "Fresh bread" {
		t.Errorf("expected best-rated first, got %q", items[0].Name)
	}
}

func TestRateOncePerVisitor(t *testing.T) {
	db := newTestDB(t)
	router := newItemRouter(db)

	item := models.Item{Name: "Escalators", Description: "moving stairs", Category: "Objects"}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	token := sessionToken(t, "visitor-rate-once")
	path := fmt.Sprintf("/api/items/%d/rate", item.ID)

	w := doJSON(t, router, http.MethodPost, path, token, gin.H{"stars": 5})
	mustStatus(t, w, http.StatusOK)

	w = doJSON(t, router, http.MethodPost, path, token, gin.H{"stars": 1})
	mustStatus(t, w, http.StatusConflict)

	var stored models.Item
	db.First(&stored, item.ID)
	if stored.RatingCount != 1 || stored.AverageRating != 5 {
		t.Errorf("repeat rating leaked into aggregate: avg=%v count=%d", stored.AverageRating, stored.RatingCount)
	}
}

func TestRateValidation(t *testing.T) {
	db := newTestDB(t)
	router := newItemRouter(db)
	item := models.Item{Name: "X", Description: "x", Category: "Other"}
	db.Create(&item)
	token := sessionToken(t, "visitor-rate-val")

	w := doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/items/%d/rate", item.ID), token, gin.H{"stars": 9})
	mustStatus(t, w, http.StatusBadRequest)

	w = doJSON(t, router, http.MethodPost, "/api/items/9999/rate", sessionToken(t, "visitor-rate-404"), gin.H{"stars": 3})
	mustStatus(t, w, http.StatusNotFound)
}

func TestReportCounterAndReporterSet(t *testing.T) {
	db := newTestDB(t)
	router := newItemRouter(db)

	item := models.Item{Name: "Spam thing", Description: "spam", Category: "Other", AverageRating: 3.5, RatingCount: 2}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	path := fmt.Sprintf("/api/items/%d/report", item.ID)

	// Three distinct visitors flag the item.
	for i := 0; i < 3; i++ {
		token := sessionToken(t, fmt.Sprintf("reporter-%d", i))
		w := doJSON(t, router, http.MethodPost, path, token, nil)
		mustStatus(t, w, http.StatusOK)
	}

	var stored models.Item
	db.First(&stored, item.ID)
	if stored.Reported != 3 {
		t.Errorf("expected counter 3, got %d", stored.Reported)
	}
	var setSize int64
	db.Model(&models.ItemReport{}).Where("item_id = ?", item.ID).Count(&setSize)
	if setSize != 3 {
		t.Errorf("expected 3 reporter rows, got %d", setSize)
	}

	// One of them flags again: the counter moves, the set does not.
	w := doJSON(t, router, http.MethodPost, path, sessionToken(t, "reporter-0"), nil)
	mustStatus(t, w, http.StatusOK)

	db.First(&stored, item.ID)
	if stored.Reported != 4 {
		t.Errorf("expected counter 4 after repeat flag, got %d", stored.Reported)
	}
	db.Model(&models.ItemReport{}).Where("item_id = ?", item.ID).Count(&setSize)
	if setSize != 3 {
		t.Errorf("reporter set must stay at 3, got %d", setSize)
	}

	// Ratings are untouched by reporting.
	if stored.AverageRating != 3.5 || stored.RatingCount != 2 {
		t.Errorf("reporting altered the aggregate: avg=%v count=%d", stored.AverageRating, stored.RatingCount)
	}
}

func TestReportMissingItem(t *testing.T) {
	router := newItemRouter(newTestDB(t))
	w := doJSON(t, router, http.MethodPost, "/api/items/4242/report", sessionToken(t, "reporter-x"), nil)
	mustStatus(t, w, http.StatusNotFound)
}

func TestListCacheInvalidatedOnReportAndClear(t *testing.T) {
	db := newTestDB(t)
	itemRouter := newItemRouter(db)
	adminRouter := newAdminRouter(db)

	calls := 0
	orig := invalidateItemCache
	invalidateItemCache = func() { calls++ }
	defer func() { invalidateItemCache = orig }()

	item := models.Item{Name: "Cached thing", Description: "x", Category: "Other"}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Reported is serialized in list responses, so flagging drops the cache.
	w := doJSON(t, itemRouter, http.MethodPost,
		fmt.Sprintf("/api/items/%d/report", item.ID), sessionToken(t, "cache-reporter"), nil)
	mustStatus(t, w, http.StatusOK)
	if calls != 1 {
		t.Errorf("expected 1 invalidation after report, got %d", calls)
	}

	// So does dismissing the flags.
	w = doJSON(t, adminRouter, http.MethodPost,
		fmt.Sprintf("/api/admin/items/%d/clear-reports", item.ID), adminToken(t), nil)
	mustStatus(t, w, http.StatusOK)
	if calls != 2 {
		t.Errorf("expected 2 invalidations after clear, got %d", calls)
	}
}

func TestListEmptyCatalogSerializesEmptyArray(t *testing.T) {
	router := newItemRouter(newTestDB(t))
	w := doJSON(t, router, http.MethodGet, "/api/items", "", nil)
	mustStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), `"items":[]`) {
		t.Errorf("empty catalog must serialize items as [], got %s", w.Body.String())
	}
}
