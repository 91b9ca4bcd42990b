package controllers

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/anyrate/config"
	"github.com/cppla/anyrate/models"
	"github.com/cppla/anyrate/services"
	"github.com/cppla/anyrate/utils"
)

const adminSessionDuration = 12 * time.Hour

// adminLoginError is shown for any credential failure so the response never
// reveals which half was wrong.
const adminLoginError = "Invalid Admin ID or Password"

// AdminController covers the moderation dashboard: login, the reported queue,
// clearing flags, and permanent deletion.
type AdminController struct {
	db   *gorm.DB
	live *services.LiveHub
}

func NewAdminController(db *gorm.DB, live *services.LiveHub) *AdminController {
	return &AdminController{db: db, live: live}
}

type adminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login checks the configured admin credentials and issues an admin token.
// When a bcrypt hash is configured it replaces the literal comparison.
func (ac *AdminController) Login(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "username and password are required")
		return
	}

	cfg := config.Get()
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(cfg.AdminUsername)) == 1

	var passOK bool
	if cfg.AdminPasswordHash != "" {
		passOK = utils.CheckPassword(cfg.AdminPasswordHash, req.Password)
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(req.Password), []byte(cfg.AdminPassword)) == 1
	}

	if !userOK || !passOK {
		utils.Sugar.Warnf("admin login failed for username %q from %s", req.Username, c.ClientIP())
		utils.Error(c, http.StatusUnauthorized, adminLoginError)
		return
	}

	token, err := utils.GenerateToken("admin", "admin", true, adminSessionDuration)
	if err != nil {
		utils.Sugar.Errorf("sign admin token: %v", err)
		utils.Error(c, http.StatusInternalServerError, "could not create session")
		return
	}
	utils.Success(c, gin.H{"token": token})
}

// Logout revokes the presented admin token.
func (ac *AdminController) Logout(c *gin.Context) {
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

// ReportedQueue lists everything carrying at least one open flag, most
// flagged first, so the dashboard surfaces the worst offenders on top.
func (ac *AdminController) ReportedQueue(c *gin.Context) {
	var items []models.Item
	if err := ac.db.Where("reported > 0").Order("reported desc, id desc").Find(&items).Error; err != nil {
		utils.Sugar.Errorf("load reported items: %v", err)
		utils.Error(c, http.StatusInternalServerError, "could not load reported queue")
		return
	}
	var posts []models.Post
	if err := ac.db.Where("reported > 0").Order("reported desc, id desc").Find(&posts).Error; err != nil {
		utils.Sugar.Errorf("load reported posts: %v", err)
		utils.Error(c, http.StatusInternalServerError, "could not load reported queue")
		return
	}
	utils.Success(c, gin.H{"items": items, "posts": posts})
}

// ClearItemReports dismisses all flags on an item. Ratings are untouched;
// only the report counter and the reporter set reset.
func (ac *AdminController) ClearItemReports(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid item id")
		return
	}

	var item models.Item
	err = ac.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Item{}).Where("id = ?", uint(id)).UpdateColumn("reported", 0)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("item_id = ?", uint(id)).Delete(&models.ItemReport{}).Error; err != nil {
			return err
		}
		return tx.First(&item, uint(id)).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(c, http.StatusNotFound, "item not found")
			return
		}
		utils.Sugar.Errorf("clear item reports %d: %v", id, err)
		utils.Error(c, http.StatusInternalServerError, "could not clear reports")
		return
	}

	invalidateItemCache()
	utils.Success(c, item)
}

// ClearPostReports dismisses all flags on a post.
func (ac *AdminController) ClearPostReports(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid post id")
		return
	}

	var post models.Post
	err = ac.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Post{}).Where("id = ?", uint(id)).UpdateColumn("reported", 0)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("post_id = ?", uint(id)).Delete(&models.PostReport{}).Error; err != nil {
			return err
		}
		return tx.First(&post, uint(id)).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(c, http.StatusNotFound, "post not found")
			return
		}
		utils.Sugar.Errorf("clear post reports %d: %v", id, err)
		utils.Error(c, http.StatusInternalServerError, "could not clear reports")
		return
	}

	utils.Success(c, post)
}

// DeleteItem removes an item and its reports permanently.
func (ac *AdminController) DeleteItem(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid item id")
		return
	}

	err = ac.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("item_id = ?", uint(id)).Delete(&models.ItemReport{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Item{}, uint(id))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(c, http.StatusNotFound, "item not found")
			return
		}
		utils.Sugar.Errorf("delete item %d: %v", id, err)
		utils.Error(c, http.StatusInternalServerError, "could not delete item")
		return
	}

	invalidateItemCache()
	ac.live.Publish("item.deleted", gin.H{"id": uint(id)})
	utils.Success(c, gin.H{"deleted": uint(id)})
}

// DeletePost removes a post, its comments and its reports permanently.
func (ac *AdminController) DeletePost(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid post id")
		return
	}

	err = ac.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", uint(id)).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", uint(id)).Delete(&models.PostReport{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Post{}, uint(id))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(c, http.StatusNotFound, "post not found")
			return
		}
		utils.Sugar.Errorf("delete post %d: %v", id, err)
		utils.Error(c, http.StatusInternalServerError, "could not delete post")
		return
	}

	ac.live.Publish("post.deleted", gin.H{"id": uint(id)})
	utils.Success(c, gin.H{"deleted": uint(id)})
}
