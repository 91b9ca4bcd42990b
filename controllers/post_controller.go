package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/anyrate/middleware"
	"github.com/cppla/anyrate/models"
	"github.com/cppla/anyrate/services"
	"github.com/cppla/anyrate/utils"
)

// PostController serves the social feed: posts, threaded comments, and votes.
type PostController struct {
	db     *gorm.DB
	intake *services.IntakeService
	live   *services.LiveHub
}

func NewPostController(db *gorm.DB, intake *services.IntakeService, live *services.LiveHub) *PostController {
	return &PostController{db: db, intake: intake, live: live}
}

// List returns the feed newest first.
func (pc *PostController) List(c *gin.Context) {
	category := c.Query("category")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "30"))
	if size < 1 || size > 100 {
		size = 30
	}

	tx := pc.db.Model(&models.Post{})
	if category != "" {
		tx = tx.Where("category = ?", category)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		utils.Sugar.Errorf("count posts: %v", err)
		utils.Error(c, http.StatusInternalServerError, "could not load posts")
		return
	}

	// Empty, not nil, so an empty feed serializes as [].
	posts := []models.Post{}
	if err := tx.Order("id desc").
		Offset((page - 1) * size).
		Limit(size).
		Find(&posts).Error; err != nil {
		utils.Sugar.Errorf("list posts: %v", err)
		utils.Error(c, http.StatusInternalServerError, "could not load posts")
		return
	}

	utils.Success(c, gin.H{
		"posts": posts,
		"total": total,
		"page":  page,
		"size":  size,
	})
}

type createPostRequest struct {
	Content  string `json:"content" binding:"required,max=4000"`
	Category string `json:"category"`
}

// Create submits a post through the intake gate.
func (pc *PostController) Create(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "content is required")
		return
	}

	result, err := pc.intake.SubmitPost(c.Request.Context(), req.Content, req.Category, middleware.VisitorID(c))
	if err != nil {
		utils.Sugar.Errorf("post intake: %v", err)
		utils.Error(c, http.StatusInternalServerError, "could not save post")
		return
	}
	if result.Rejected {
		utils.Error(c, http.StatusUnprocessableEntity, result.Reason)
		return
	}

	pc.live.Publish("post.created", result.Post)
	utils.Success(c, result.Post)
}

// Comments returns one layer of the comment tree for a post. Without a parent
// query it returns top-level comments; with ?parent=<id> the direct children
// of that comment. Clients walk the tree one expansion at a time.
func (pc *PostController) Comments(c *gin.Context) {
	postID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid post id")
		return
	}

	tx := pc.db.Where("post_id = ?", uint(postID))
	if raw := c.Query("parent"); raw != "" {
		parentID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			utils.Error(c, http.StatusBadRequest, "invalid parent id")
			return
		}
		tx = tx.Where("parent_id = ?", uint(parentID))
	} else {
		tx = tx.Where("parent_id IS NULL")
	}

	comments := []models.Comment{}
	if err := tx.Order("id asc").Find(&comments).Error; err != nil {
		utils.Sugar.Errorf("list comments for post %d: %v", postID, err)
		utils.Error(c, http.StatusInternalServerError, "could not load comments")
		return
	}
	utils.Success(c, comments)
}

type createCommentRequest struct {
	Content  string `json:"content" binding:"required,max=2000"`
	ParentID *uint  `json:"parent_id"`
}

// CreateComment adds a reply to a post, optionally under an existing comment.
// The parent must belong to the same post, which keeps every ancestor chain
// inside one thread.
func (pc *PostController) CreateComment(c *gin.Context) {
	postID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid post id")
		return
	}
	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "content is required")
		return
	}

	var post models.Post
	if err := pc.db.First(&post, uint(postID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(c, http.StatusNotFound, "post not found")
			return
		}
		utils.Sugar.Errorf("load post %d: %v", postID, err)
		utils.Error(c, http.StatusInternalServerError, "could not save comment")
		return
	}

	if req.ParentID != nil {
		var parent models.Comment
		if err := pc.db.First(&parent, *req.ParentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.Error(c, http.StatusNotFound, "parent comment not found")
				return
			}
			utils.Sugar.Errorf("load parent comment %d: %v", *req.ParentID, err)
			utils.Error(c, http.StatusInternalServerError, "could not save comment")
			return
		}
		if parent.PostID != uint(postID) {
			utils.Error(c, http.StatusBadRequest, "parent comment belongs to a different post")
			return
		}
	}

	comment := models.Comment{
		PostID:    uint(postID),
		ParentID:  req.ParentID,
		Content:   utils.Sanitize(req.Content),
		CreatedBy: middleware.VisitorID(c),
	}
	if err := pc.db.Create(&comment).Error; err != nil {
		utils.Sugar.Errorf("create comment: %v", err)
		utils.Error(c, http.StatusInternalServerError, "could not save comment")
		return
	}

	pc.live.Publish("comment.created", comment)
	utils.Success(c, comment)
}

type voteRequest struct {
	Direction string `json:"direction" binding:"required,oneof=up down"`
}

// VotePost records an up or down vote on a post. A marker suppresses repeat
// votes from the same visitor, best effort.
func (pc *PostController) VotePost(c *gin.Context) {
	postID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid post id")
		return
	}
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "direction must be up or down")
		return
	}

	visitorID := middleware.VisitorID(c)
	if utils.HasMarker("post-vote", uint(postID), visitorID) {
		utils.Error(c, http.StatusConflict, "you already voted on this post")
		return
	}

	column := "upvotes"
	if req.Direction == "down" {
		column = "downvotes"
	}

	var post models.Post
	err = pc.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Post{}).
			Where("id = ?", uint(postID)).
			UpdateColumn(column, gorm.Expr(column+" + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.First(&post, uint(postID)).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(c, http.StatusNotFound, "post not found")
			return
		}
		utils.Sugar.Errorf("vote post %d: %v", postID, err)
		utils.Error(c, http.StatusInternalServerError, "could not save vote")
		return
	}

	utils.SetMarker("post-vote", uint(postID), visitorID)
	pc.live.Publish("post.voted", post)
	utils.Success(c, post)
}

// VoteComment records an up or down vote on a comment.
func (pc *PostController) VoteComment(c *gin.Context) {
	commentID, err := strconv.ParseUint(c.Param("commentId"), 10, 64)
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid comment id")
		return
	}
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "direction must be up or down")
		return
	}

	visitorID := middleware.VisitorID(c)
	if utils.HasMarker("comment-vote", uint(commentID), visitorID) {
		utils.Error(c, http.StatusConflict, "you already voted on this comment")
		return
	}

	column := "upvotes"
	if req.Direction == "down" {
		column = "downvotes"
	}

	var comment models.Comment
	err = pc.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Comment{}).
			Where("id = ?", uint(commentID)).
			UpdateColumn(column, gorm.Expr(column+" + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.First(&comment, uint(commentID)).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(c, http.StatusNotFound, "comment not found")
			return
		}
		utils.Sugar.Errorf("vote comment %d: %v", commentID, err)
		utils.Error(c, http.StatusInternalServerError, "could not save vote")
		return
	}

	utils.SetMarker("comment-vote", uint(commentID), visitorID)
	pc.live.Publish("comment.voted", comment)
	utils.Success(c, comment)
}

// Report flags a post for admin review. Same counter and reporter-set shape
// as item reports.
func (pc *PostController) Report(c *gin.Context) {
	postID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid post id")
		return
	}
	visitorID := middleware.VisitorID(c)

	var post models.Post
	err = pc.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Post{}).
			Where("id = ?", uint(postID)).
			UpdateColumn("reported", gorm.Expr("reported + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		report := models.PostReport{PostID: uint(postID), VisitorID: visitorID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&report).Error; err != nil {
			return err
		}
		return tx.First(&post, uint(postID)).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(c, http.StatusNotFound, "post not found")
			return
		}
		utils.Sugar.Errorf("report post %d: %v", postID, err)
		utils.Error(c, http.StatusInternalServerError, "could not save report")
		return
	}

	pc.live.Publish("post.reported", gin.H{"id": post.ID, "reported": post.Reported})
	utils.Success(c, post)
}
