package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/trustlend/trustlend/internal/apperr"
	"github.com/trustlend/trustlend/internal/db"
	"github.com/trustlend/trustlend/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := db.Open("file:" + t.TempDir() + "/profile.db")
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func TestProvision_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := NewService(openTestDB(t))

	first, errFirst := svc.Provision(ctx, "user_123", "ada@example.com", "", "")
	if errFirst != nil {
		t.Fatalf("Provision: %v", errFirst)
	}
	if first.Profile == nil {
		t.Fatalf("expected profile on first provision")
	}
	if first.Profile.DisplayName != "ada" {
		t.Fatalf("expected display name from email, got %q", first.Profile.DisplayName)
	}
	if first.Profile.Role != models.ProfileRoleBoth || !first.Profile.AllowAssessments {
		t.Fatalf("unexpected defaults: %+v", first.Profile)
	}
	if !first.Profile.Credits.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected 10 starting credits, got %s", first.Profile.Credits)
	}

	second, errSecond := svc.Provision(ctx, "user_123", "other@example.com", "Someone", "")
	if errSecond != nil {
		t.Fatalf("Provision again: %v", errSecond)
	}
	if second.ID != first.ID || second.Email != "ada@example.com" {
		t.Fatalf("expected the existing user, got %+v", second)
	}

	if _, errEmpty := svc.Provision(ctx, " ", "", "", ""); !errors.Is(errEmpty, apperr.ErrNotAuthenticated) {
		t.Fatalf("expected not authenticated, got %v", errEmpty)
	}
}

func TestGetAndUpdate(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	svc := NewService(conn)

	user, errProvision := svc.Provision(ctx, "sub", "b@example.com", "Bea", "")
	if errProvision != nil {
		t.Fatalf("Provision: %v", errProvision)
	}
	docs := []models.Document{
		{UserID: user.ID, Filename: "a.jpg", Category: "Receipt"},
		{UserID: user.ID, Filename: "b.jpg", Category: "Receipt", IsDeleted: true},
	}
	if errCreate := conn.Create(&docs).Error; errCreate != nil {
		t.Fatalf("seed documents: %v", errCreate)
	}

	view, errGet := svc.Get(ctx, user.ID)
	if errGet != nil {
		t.Fatalf("Get: %v", errGet)
	}
	if view.DocumentsCount != 1 || view.WalletsCount != 0 || view.Email != "b@example.com" {
		t.Fatalf("unexpected view: %+v", view)
	}
	if !view.IsBorrower() || !view.IsLender() {
		t.Fatalf("expected both roles")
	}

	allow := false
	updated, errUpdate := svc.Update(ctx, user.ID, UpdateInput{DisplayName: "Bea L", Role: models.ProfileRoleLender, AllowAssessments: &allow})
	if errUpdate != nil {
		t.Fatalf("Update: %v", errUpdate)
	}
	if updated.DisplayName != "Bea L" || updated.Role != models.ProfileRoleLender || updated.AllowAssessments {
		t.Fatalf("unexpected update: %+v", updated)
	}

	if _, errRole := svc.Update(ctx, user.ID, UpdateInput{DisplayName: "x", Role: "admin"}); !errors.Is(errRole, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid role error, got %v", errRole)
	}
	if _, errMissing := svc.Get(ctx, 9999); !errors.Is(errMissing, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", errMissing)
	}
}

func TestCredits(t *testing.T) {
	ctx := context.Background()
	svc := NewService(openTestDB(t))

	user, errProvision := svc.Provision(ctx, "sub", "c@example.com", "Cy", "")
	if errProvision != nil {
		t.Fatalf("Provision: %v", errProvision)
	}
	balance, errAdd := svc.AddCredits(ctx, user.ID, decimal.RequireFromString("2.5"))
	if errAdd != nil {
		t.Fatalf("AddCredits: %v", errAdd)
	}
	if !balance.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("expected 12.5, got %s", balance)
	}
	if _, errZero := svc.AddCredits(ctx, user.ID, decimal.Zero); !errors.Is(errZero, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", errZero)
	}

	none, errCredits := svc.Credits(ctx, 4242)
	if errCredits != nil {
		t.Fatalf("Credits: %v", errCredits)
	}
	if !none.IsZero() {
		t.Fatalf("expected zero for unknown user, got %s", none)
	}
}

func TestDisplayNames(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	svc := NewService(conn)
	user, errProvision := svc.Provision(ctx, "sub", "", "Dee", "")
	if errProvision != nil {
		t.Fatalf("Provision: %v", errProvision)
	}
	names, errNames := DisplayNames(ctx, conn, []uint64{user.ID, 77})
	if errNames != nil {
		t.Fatalf("DisplayNames: %v", errNames)
	}
	if NameOr(names, user.ID) != "Dee" || NameOr(names, 77) != "Unknown" {
		t.Fatalf("unexpected names: %v", names)
	}
}
