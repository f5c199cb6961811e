package repository

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/linksnip/linksnip/internal/idgen"
	"github.com/linksnip/linksnip/internal/model"
)

// LinkRepository is the durable store for links and clicks. It is the
// source of truth; the cache layer only accelerates it.
type LinkRepository struct {
	db  *gorm.DB
	ids *idgen.Generator
}

// NewLinkRepository connects to PostgreSQL, configures the connection pool
// and migrates the schema.
func NewLinkRepository(dsn string, maxIdleConns, maxOpenConns int, ids *idgen.Generator) (*LinkRepository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         glogger.Default.LogMode(glogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)

	if err := db.AutoMigrate(&model.Link{}, &model.Click{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &LinkRepository{db: db, ids: ids}, nil
}

// Create inserts a new link. A colliding code surfaces as
// gorm.ErrDuplicatedKey for the caller to retry with a fresh one.
func (r *LinkRepository) Create(ctx context.Context, link *model.Link) error {
	if link.ID == 0 {
		link.ID = r.ids.NextID()
	}
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

// GetByCode retrieves a link by its short code. Returns (nil, nil) when
// absent; expiry is not filtered here, callers decide.
func (r *LinkRepository) GetByCode(ctx context.Context, code string) (*model.Link, error) {
	var link model.Link
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&link).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}
	return &link, nil
}

// GetByCodeWithClicks retrieves a link together with its click log.
// Clicks come back in insertion order.
func (r *LinkRepository) GetByCodeWithClicks(ctx context.Context, code string) (*model.Link, error) {
	var link model.Link
	err := r.db.WithContext(ctx).
		Preload("Clicks", func(db *gorm.DB) *gorm.DB { return db.Order("clicks.id") }).
		Where("code = ?", code).
		First(&link).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get link with clicks: %w", err)
	}
	return &link, nil
}

// RecordClick appends a click and increments the link's counter in one
// transaction, keeping click_count equal to the number of click rows.
// A click against an unknown code is silently dropped.
func (r *LinkRepository) RecordClick(ctx context.Context, code, ip, userAgent, referer string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var link model.Link
		if err := tx.Where("code = ?", code).First(&link).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}

		if err := tx.Model(&model.Link{}).
			Where("id = ?", link.ID).
			UpdateColumn("click_count", gorm.Expr("click_count + ?", 1)).Error; err != nil {
			return err
		}

		click := &model.Click{
			ID:        r.ids.NextID(),
			LinkID:    link.ID,
			IP:        ip,
			UserAgent: userAgent,
			Referer:   referer,
		}
		return tx.Create(click).Error
	})
	if err != nil {
		return fmt.Errorf("failed to record click: %w", err)
	}
	return nil
}

// AllCodes retrieves every issued short code, used to warm the bloom
// filter at startup.
func (r *LinkRepository) AllCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := r.db.WithContext(ctx).Model(&model.Link{}).Pluck("code", &codes).Error; err != nil {
		return nil, fmt.Errorf("failed to get all codes: %w", err)
	}
	return codes, nil
}

// Delete removes a link and its clicks in one transaction. Expiry is
// logical and nothing calls this in the serving path; it exists for
// operational cleanup.
func (r *LinkRepository) Delete(ctx context.Context, code string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var link model.Link
		if err := tx.Where("code = ?", code).First(&link).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return err
		}
		if err := tx.Where("link_id = ?", link.ID).Delete(&model.Click{}).Error; err != nil {
			return err
		}
		return tx.Delete(&link).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	return nil
}

// Close closes the underlying database connection
func (r *LinkRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
