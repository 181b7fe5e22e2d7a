package db

import (
	"fmt"

	"github.com/trustlend/trustlend/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite:
		return migrateSQLite(conn)
	case DialectPostgres, "":
		return migratePostgres(conn)
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}
}

func autoMigrate(conn *gorm.DB) error {
	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&models.Wallet{},
		&models.LoanRequest{},
		&models.Document{},
		&models.UploadHistory{},
		&models.AssessmentRequest{},
		&models.Keypair{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return nil
}

// migratePostgres applies PostgreSQL schema updates and partial indexes.
func migratePostgres(conn *gorm.DB) error {
	if errAuto := autoMigrate(conn); errAuto != nil {
		return errAuto
	}

	if errListedIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_loan_requests_listed
		ON loan_requests (created_at DESC)
		WHERE status = 'active' AND is_published = true
	`).Error; errListedIdx != nil {
		return fmt.Errorf("db: create listed loan requests index: %w", errListedIdx)
	}
	if errLiveDocsIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_documents_user_live
		ON documents (user_id, uploaded_at DESC)
		WHERE is_deleted = false
	`).Error; errLiveDocsIdx != nil {
		return fmt.Errorf("db: create live documents index: %w", errLiveDocsIdx)
	}
	if errProcessingIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_assessment_requests_processing
		ON assessment_requests (updated_at)
		WHERE status = 'processing'
	`).Error; errProcessingIdx != nil {
		return fmt.Errorf("db: create processing assessments index: %w", errProcessingIdx)
	}
	if errCreditsCheck := conn.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_profiles_credits_non_negative') THEN
				ALTER TABLE profiles ADD CONSTRAINT chk_profiles_credits_non_negative CHECK (credits >= 0) NOT VALID;
			END IF;
		END $$;
	`).Error; errCreditsCheck != nil {
		return fmt.Errorf("db: add credits check: %w", errCreditsCheck)
	}
	return nil
}

// migrateSQLite applies SQLite schema updates.
func migrateSQLite(conn *gorm.DB) error {
	if errAuto := autoMigrate(conn); errAuto != nil {
		return errAuto
	}
	if errLiveDocsIdx := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_documents_user_live
		ON documents (user_id, uploaded_at)
		WHERE is_deleted = 0
	`).Error; errLiveDocsIdx != nil {
		return fmt.Errorf("db: create live documents index: %w", errLiveDocsIdx)
	}
	return nil
}
