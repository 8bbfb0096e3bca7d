package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"pagetext/pkg/domain"
)

const migrateLockID int64 = 7_304_118_221

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&DocumentModel{}, &PageModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// withMigrationLock serializes migrations across service replicas.
func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveDocument upserts the document row and replaces its pages.
func (s *GormStore) SaveDocument(d domain.Document) error {
	model := documentToModel(d)
	pages := make([]PageModel, 0, len(d.Pages))
	for _, p := range d.Pages {
		pm, err := pageToModel(uuid.NewString(), d.ID, p)
		if err != nil {
			return fmt.Errorf("encode page %d: %w", p.Index, err)
		}
		pages = append(pages, pm)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"locator", "status", "error_message", "page_count", "updated_at"}),
		}).Create(&model).Error; err != nil {
			return err
		}
		if err := tx.Delete(&PageModel{}, "document_id = ?", d.ID).Error; err != nil {
			return err
		}
		if len(pages) == 0 {
			return nil
		}
		return tx.CreateInBatches(&pages, 200).Error
	})
}

// SetStatus updates status and optional error message.
func (s *GormStore) SetStatus(id string, status domain.DocumentStatus, errMsg string) error {
	res := s.db.Model(&DocumentModel{}).Where("id = ?", id).Updates(map[string]any{
		"status":        string(status),
		"error_message": errMsg,
		"updated_at":    time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetDocument returns a document with its pages in page order.
func (s *GormStore) GetDocument(id string) (domain.Document, bool, error) {
	var model DocumentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	var pages []PageModel
	if err := s.db.Where("document_id = ?", id).Order("page_index ASC").Find(&pages).Error; err != nil {
		return domain.Document{}, false, err
	}
	doc := documentFromModel(model)
	doc.Pages = make([]domain.Page, 0, len(pages))
	for _, p := range pages {
		doc.Pages = append(doc.Pages, pageFromModel(p))
	}
	return doc, true, nil
}

// ListDocuments returns the most recent documents without pages.
func (s *GormStore) ListDocuments(limit int) ([]domain.Document, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []DocumentModel
	if err := s.db.Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Document, 0, len(models))
	for _, m := range models {
		res = append(res, documentFromModel(m))
	}
	return res, nil
}

// DeleteDocument removes a document and its pages.
func (s *GormStore) DeleteDocument(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&PageModel{}, "document_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&DocumentModel{}, "id = ?", id).Error
	})
}
