package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/anyrate/middleware"
	"github.com/cppla/anyrate/models"
	"github.com/cppla/anyrate/services"
	"github.com/cppla/anyrate/utils"
)

const itemListCachePrefix = "cache:items:"

// invalidateItemCache drops every cached item listing. Any write that touches
// a field serialized in list responses must call it. Package variable so
// tests can observe the calls.
var invalidateItemCache = func() { utils.InvalidateByPrefix(itemListCachePrefix) }

// ItemController serves the rateable catalog: listing, submission through the
// intake gate, rating, and reporting.
type ItemController struct {
	db     *gorm.DB
	intake *services.IntakeService
	rating *services.RatingService
	live   *services.LiveHub
}

func NewItemController(db *gorm.DB, intake *services.IntakeService, rating *services.RatingService, live *services.LiveHub) *ItemController {
	return &ItemController{db: db, intake: intake, rating: rating, live: live}
}

// List returns items sorted by average rating, best first. Results are cached
// in Redis per (category, query, page) and invalidated on every write.
func (ic *ItemController) List(c *gin.Context) {
	category := c.Query("category")
	query := c.Query("q")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "50"))
	if size < 1 || size > 200 {
		size = 50
	}

	cacheKey := fmt.Sprintf("%s%s:%s:%d:%d", itemListCachePrefix, category, query, page, size)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		c.Data(http.StatusOK, "application/json; charset=utf-8", b)
		return
	}

	tx := ic.db.Model(&models.Item{})
	if category != "" {
		tx = tx.Where("category = ?", category)
	}
	if query != "" {
		like := "%" + query + "%"
		tx = tx.Where("name LIKE ? OR description LIKE ?", like, like)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		utils.Sugar.Errorf("count items: %v", err)
		utils.Error(c, http.StatusInternalServerError, "could not load items")
		return
	}

	// Empty, not nil, so an empty catalog serializes as [].
	items := []models.Item{}
	if err := tx.Order("average_rating desc, rating_count desc, id desc").
		Offset((page - 1) * size).
		Limit(size).
		Find(&items).Error; err != nil {
		utils.Sugar.Errorf("list items: %v", err)
		utils.Error(c, http.StatusInternalServerError, "could not load items")
		return
	}

	payload := utils.JSONResponse{
		Code:    0,
		Message: "success",
		Data: gin.H{
			"items": items,
			"total": total,
			"page":  page,
			"size":  size,
		},
	}
	utils.CacheSetJSON(cacheKey, payload, 5*time.Minute)
	c.JSON(http.StatusOK, payload)
}

// Get returns one item by id.
func (ic *ItemController) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid item id")
		return
	}
	var item models.Item
	if err := ic.db.First(&item, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(c, http.StatusNotFound, "item not found")
			return
		}
		utils.Sugar.Errorf("load item %d: %v", id, err)
		utils.Error(c, http.StatusInternalServerError, "could not load item")
		return
	}
	utils.Success(c, item)
}

type createItemRequest struct {
	Name        string `json:"name" binding:"required,max=120"`
	Description string `json:"description" binding:"required,max=2000"`
	Category    string `json:"category" binding:"required"`
}

// Create submits a new item through the intake gate.
func (ic *ItemController) Create(c *gin.Context) {
	var req createItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "name, description and category are required")
		return
	}

	result, err := ic.intake.SubmitItem(c.Request.Context(), req.Name, req.Description, req.Category, middleware.VisitorID(c))
	if err != nil {
		utils.Sugar.Errorf("item intake: %v", err)
		utils.Error(c, http.StatusInternalServerError, "could not save item")
		return
	}
	if result.Rejected {
		utils.Respond(c, http.StatusUnprocessableEntity, http.StatusUnprocessableEntity, result.Reason, gin.H{
			"duplicate_id": result.DuplicateID,
		})
		return
	}

	invalidateItemCache()
	ic.live.Publish("item.created", result.Item)
	utils.Success(c, result.Item)
}

type rateRequest struct {
	Stars int `json:"stars" binding:"required,min=1,max=5"`
}

// Rate folds one star rating into the item aggregate. A marker makes repeat
// ratings from the same visitor no-ops, best effort.
func (ic *ItemController) Rate(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid item id")
		return
	}
	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "stars must be an integer between 1 and 5")
		return
	}

	visitorID := middleware.VisitorID(c)
	if utils.HasMarker("rate", uint(id), visitorID) {
		utils.Error(c, http.StatusConflict, "you already rated this item")
		return
	}

	item, err := ic.rating.RateItem(c.Request.Context(), uint(id), req.Stars)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrItemNotFound):
			utils.Error(c, http.StatusNotFound, "item not found")
		case errors.Is(err, services.ErrInvalidStars):
			utils.Error(c, http.StatusBadRequest, err.Error())
		default:
			utils.Sugar.Errorf("rate item %d: %v", id, err)
			utils.Error(c, http.StatusInternalServerError, "could not save rating")
		}
		return
	}

	utils.SetMarker("rate", uint(id), visitorID)
	invalidateItemCache()
	ic.live.Publish("item.rated", item)
	utils.Success(c, item)
}

// Report flags an item for admin review. The counter increments on every
// call; the reporter set only grows for a visitor's first flag.
func (ic *ItemController) Report(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid item id")
		return
	}
	visitorID := middleware.VisitorID(c)

	var item models.Item
	err = ic.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Item{}).
			Where("id = ?", uint(id)).
			UpdateColumn("reported", gorm.Expr("reported + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		report := models.ItemReport{ItemID: uint(id), VisitorID: visitorID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&report).Error; err != nil {
			return err
		}
		return tx.First(&item, uint(id)).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(c, http.StatusNotFound, "item not found")
			return
		}
		utils.Sugar.Errorf("report item %d: %v", id, err)
		utils.Error(c, http.StatusInternalServerError, "could not save report")
		return
	}

	invalidateItemCache()
	ic.live.Publish("item.reported", gin.H{"id": item.ID, "reported": item.Reported})
	utils.Success(c, item)
}
