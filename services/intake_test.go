package services

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/anyrate/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Visitor{},
		&models.Item{},
		&models.ItemReport{},
		&models.Post{},
		&models.PostReport{},
		&models.Comment{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

type mockOracle struct {
	verdict ModerationVerdict
	modErr  error
	dupID   string
	dupErr  error

	moderated     []string
	dupChecked    int
	dupName       string
	dupDesc       string
	dupCandidates []CandidateItem
}

func (m *mockOracle) Moderate(ctx context.Context, text string) (ModerationVerdict, error) {
	m.moderated = append(m.moderated, text)
	return m.verdict, m.modErr
}

func (m *mockOracle) CheckDuplicate(ctx context.Context, name, description string, existing []CandidateItem) (string, error) {
	m.dupChecked++
	m.dupName = name
	m.dupDesc = description
	m.dupCandidates = existing
	return m.dupID, m.dupErr
}

func safeOracle() *mockOracle {
	return &mockOracle{verdict: ModerationVerdict{IsSafe: true}}
}

func TestSubmitItemAccepted(t *testing.T) {
	db := newTestDB(t)
	oracle := safeOracle()
	intake := NewIntakeService(db, oracle, false)

	res, err := intake.SubmitItem(context.Background(), "The Moon", "Big rock in the sky", "Objects", "anon-1")
	if err != nil {
		t.Fatalf("SubmitItem failed: %v", err)
	}
	if res.Rejected {
		t.Fatalf("unexpected rejection: %s", res.Reason)
	}
	if res.Item == nil || res.Item.ID == 0 {
		t.Fatal("expected persisted item")
	}
	if res.Item.AverageRating != 0 || res.Item.RatingCount != 0 {
		t.Error("new item must start with empty aggregate")
	}
	if len(oracle.moderated) != 1 {
		t.Errorf("expected 1 moderation call, got %d", len(oracle.moderated))
	}
}

func TestSubmitItemRejectsUnsafe(t *testing.T) {
	db := newTestDB(t)
	oracle := &mockOracle{verdict: ModerationVerdict{IsSafe: false, Reason: "contains profanity"}}
	intake := NewIntakeService(db, oracle, false)

	res, err := intake.SubmitItem(context.Background(), "bad", "bad", "Other", "anon-1")
	if err != nil {
		t.Fatalf("SubmitItem failed: %v", err)
	}
	if !res.Rejected {
		t.Fatal("expected rejection")
	}
	if res.Reason != "contains profanity" {
		t.Errorf("unexpected reason: %q", res.Reason)
	}
	if oracle.dupChecked != 0 {
		t.Error("duplicate check must not run after unsafe verdict")
	}

	var count int64
	db.Model(&models.Item{}).Count(&count)
	if count != 0 {
		t.Errorf("rejected item must not be stored, found %d rows", count)
	}
}

func TestSubmitItemRejectsDuplicate(t *testing.T) {
	db := newTestDB(t)
	if err := db.Create(&models.Item{Name: "The Moon", Description: "rock", Category: "Objects"}).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	oracle := safeOracle()
	oracle.dupID = "1"
	intake := NewIntakeService(db, oracle, false)

	res, err := intake.SubmitItem(context.Background(), "the moon", "same rock", "Objects", "anon-2")
	if err != nil {
		t.Fatalf("SubmitItem failed: %v", err)
	}
	if !res.Rejected {
		t.Fatal("expected duplicate rejection")
	}
	if res.DuplicateID != "1" {
		t.Errorf("expected duplicate id 1, got %q", res.DuplicateID)
	}

	// The oracle sees the full submission and full candidate rows, not just names.
	if oracle.dupName != "the moon" || oracle.dupDesc != "same rock" {
		t.Errorf("oracle got submission %q/%q", oracle.dupName, oracle.dupDesc)
	}
	if len(oracle.dupCandidates) != 1 || oracle.dupCandidates[0].Description != "rock" {
		t.Errorf("oracle candidates missing descriptions: %+v", oracle.dupCandidates)
	}

	var count int64
	db.Model(&models.Item{}).Count(&count)
	if count != 1 {
		t.Errorf("expected catalog unchanged, found %d rows", count)
	}
}

func TestSubmitItemUnknownCategory(t *testing.T) {
	db := newTestDB(t)
	oracle := safeOracle()
	intake := NewIntakeService(db, oracle, false)

	res, err := intake.SubmitItem(context.Background(), "x", "y", "Galaxies", "anon-1")
	if err != nil {
		t.Fatalf("SubmitItem failed: %v", err)
	}
	if !res.Rejected {
		t.Fatal("expected rejection for unknown category")
	}
	if len(oracle.moderated) != 0 {
		t.Error("oracle must not be called for an invalid category")
	}
}

func TestSubmitItemFailOpenAdmitsUnscreened(t *testing.T) {
	db := newTestDB(t)
	oracle := &mockOracle{modErr: ErrOracleUnavailable}
	intake := NewIntakeService(db, oracle, false)

	res, err := intake.SubmitItem(context.Background(), "x", "y", "Other", "anon-1")
	if err != nil {
		t.Fatalf("SubmitItem failed: %v", err)
	}
	if res.Rejected {
		t.Fatalf("fail-open must admit, got rejection: %s", res.Reason)
	}
	if res.Item == nil {
		t.Fatal("expected persisted item")
	}
}

func TestSubmitItemDuplicateCaughtDespiteModerationOutage(t *testing.T) {
	db := newTestDB(t)
	if err := db.Create(&models.Item{Name: "Coffee", Description: "drink", Category: "Objects"}).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	// Moderation is down (and fails open), the duplicate oracle is healthy.
	oracle := &mockOracle{modErr: ErrOracleUnavailable, dupID: "1"}
	intake := NewIntakeService(db, oracle, false)

	res, err := intake.SubmitItem(context.Background(), "Coffee", "drink", "Objects", "anon-1")
	if err != nil {
		t.Fatalf("SubmitItem failed: %v", err)
	}
	if oracle.dupChecked != 1 {
		t.Fatalf("duplicate check must still run, got %d calls", oracle.dupChecked)
	}
	if !res.Rejected || res.DuplicateID != "1" {
		t.Fatalf("expected duplicate rejection, got rejected=%v dup=%q", res.Rejected, res.DuplicateID)
	}

	var count int64
	db.Model(&models.Item{}).Count(&count)
	if count != 1 {
		t.Errorf("duplicate must not be stored, found %d rows", count)
	}
}

func TestSubmitItemFailClosedRejects(t *testing.T) {
	db := newTestDB(t)
	oracle := &mockOracle{modErr: ErrOracleUnavailable}
	intake := NewIntakeService(db, oracle, true)

	res, err := intake.SubmitItem(context.Background(), "x", "y", "Other", "anon-1")
	if err != nil {
		t.Fatalf("SubmitItem failed: %v", err)
	}
	if !res.Rejected {
		t.Fatal("fail-closed must reject when the oracle is down")
	}
	if res.Reason != oracleDownReason {
		t.Errorf("unexpected reason: %q", res.Reason)
	}

	var count int64
	db.Model(&models.Item{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no rows, found %d", count)
	}
}

func TestSubmitItemDuplicateCheckFailOpen(t *testing.T) {
	db := newTestDB(t)
	if err := db.Create(&models.Item{Name: "Coffee", Description: "drink", Category: "Objects"}).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	oracle := safeOracle()
	oracle.dupErr = errors.New("boom")
	intake := NewIntakeService(db, oracle, false)

	res, err := intake.SubmitItem(context.Background(), "Tea", "drink", "Objects", "anon-1")
	if err != nil {
		t.Fatalf("SubmitItem failed: %v", err)
	}
	if res.Rejected {
		t.Fatalf("fail-open must admit when only the duplicate check fails, got: %s", res.Reason)
	}
}

func TestSubmitPostModerated(t *testing.T) {
	db := newTestDB(t)
	oracle := &mockOracle{verdict: ModerationVerdict{IsSafe: false, Reason: "explicit content"}}
	intake := NewIntakeService(db, oracle, false)

	res, err := intake.SubmitPost(context.Background(), "terrible things", "", "anon-1")
	if err != nil {
		t.Fatalf("SubmitPost failed: %v", err)
	}
	if !res.Rejected {
		t.Fatal("expected rejection")
	}

	oracle.verdict = ModerationVerdict{IsSafe: true}
	res, err = intake.SubmitPost(context.Background(), "a fine day", "Concepts", "anon-1")
	if err != nil {
		t.Fatalf("SubmitPost failed: %v", err)
	}
	if res.Rejected || res.Post == nil || res.Post.ID == 0 {
		t.Fatal("expected persisted post")
	}
}
