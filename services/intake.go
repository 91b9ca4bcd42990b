package services

import (
	"context"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/cppla/anyrate/models"
	"github.com/cppla/anyrate/utils"
)

// IntakeService gates every new item and post through the oracle before it
// reaches the database: a safety check first, then (for items) a semantic
// duplicate check against existing names. When the oracle itself is down the
// configured policy decides: fail-open admits the submission, fail-closed
// rejects it.
type IntakeService struct {
	db         *gorm.DB
	oracle     Oracle
	failClosed bool
}

// NewIntakeService wires the intake gate.
func NewIntakeService(db *gorm.DB, oracle Oracle, failClosed bool) *IntakeService {
	return &IntakeService{db: db, oracle: oracle, failClosed: failClosed}
}

// IntakeResult reports the outcome of one submission attempt. Rejection is a
// normal outcome, not an error: handlers map it to a 4xx with the reason.
type IntakeResult struct {
	Rejected    bool
	Reason      string
	DuplicateID string
	Item        *models.Item
	Post        *models.Post
}

const oracleDownReason = "Content screening is temporarily unavailable. Please try again later."

// candidateLimit caps how many existing names are shipped to the duplicate
// check; the newest submissions are the likeliest collision targets anyway.
const candidateLimit = 200

// SubmitItem screens and stores a new ratable item.
func (s *IntakeService) SubmitItem(ctx context.Context, name, description, category, visitorID string) (IntakeResult, error) {
	if !models.IsValidCategory(category) {
		return IntakeResult{Rejected: true, Reason: "Unknown category."}, nil
	}

	name = utils.Sanitize(name)
	description = utils.Sanitize(description)

	verdict, err := s.oracle.Moderate(ctx, name+": "+description)
	if err != nil {
		if res, done := s.oracleDown(err); done {
			return res, nil
		}
	} else if !verdict.IsSafe {
		reason := verdict.Reason
		if reason == "" {
			reason = "Content flagged as inappropriate."
		}
		return IntakeResult{Rejected: true, Reason: reason}, nil
	}

	// The duplicate check runs even when moderation failed open: each oracle
	// call degrades independently, so a healthy duplicate oracle still catches
	// duplicates during a moderation outage.
	var existing []models.Item
	if err := s.db.WithContext(ctx).
		Select("id", "name", "description").
		Order("id desc").
		Limit(candidateLimit).
		Find(&existing).Error; err != nil {
		return IntakeResult{}, fmt.Errorf("load duplicate candidates: %w", err)
	}
	candidates := make([]CandidateItem, 0, len(existing))
	for _, it := range existing {
		candidates = append(candidates, CandidateItem{
			ID:          strconv.FormatUint(uint64(it.ID), 10),
			Name:        it.Name,
			Description: it.Description,
		})
	}
	dupID, derr := s.oracle.CheckDuplicate(ctx, name, description, candidates)
	if derr != nil {
		if res, done := s.oracleDown(derr); done {
			return res, nil
		}
	} else if dupID != "" {
		return IntakeResult{
			Rejected:    true,
			Reason:      "This item already exists.",
			DuplicateID: dupID,
		}, nil
	}

	item := models.Item{
		Name:        name,
		Description: description,
		Category:    category,
		CreatedBy:   visitorID,
	}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		return IntakeResult{}, fmt.Errorf("create item: %w", err)
	}
	return IntakeResult{Item: &item}, nil
}

// SubmitPost screens and stores a new feed post. Posts are free-form, so only
// the safety check applies.
func (s *IntakeService) SubmitPost(ctx context.Context, content, category, visitorID string) (IntakeResult, error) {
	if category != "" && !models.IsValidCategory(category) {
		return IntakeResult{Rejected: true, Reason: "Unknown category."}, nil
	}

	content = utils.Sanitize(content)

	verdict, err := s.oracle.Moderate(ctx, content)
	if err != nil {
		if res, done := s.oracleDown(err); done {
			return res, nil
		}
	} else if !verdict.IsSafe {
		reason := verdict.Reason
		if reason == "" {
			reason = "Content flagged as inappropriate."
		}
		return IntakeResult{Rejected: true, Reason: reason}, nil
	}

	post := models.Post{
		Content:   content,
		Category:  category,
		CreatedBy: visitorID,
	}
	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		return IntakeResult{}, fmt.Errorf("create post: %w", err)
	}
	return IntakeResult{Post: &post}, nil
}

// oracleDown applies the availability policy. Returns done=true with a
// rejection when the policy is fail-closed; fail-open logs and lets the
// submission through unscreened.
func (s *IntakeService) oracleDown(err error) (IntakeResult, bool) {
	if s.failClosed {
		utils.Sugar.Warnf("oracle unavailable, rejecting submission: %v", err)
		return IntakeResult{Rejected: true, Reason: oracleDownReason}, true
	}
	utils.Sugar.Warnf("oracle unavailable, admitting submission unscreened: %v", err)
	return IntakeResult{}, false
}
