package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/storylinehq/publisher/domains/content"
	pkgError "github.com/storylinehq/publisher/pkg/error"
	"gorm.io/gorm"
)

// --- Persistence Model ---

type contentModel struct {
	ID            string         `gorm:"primaryKey;column:id"`
	UserID        string         `gorm:"column:user_id;index;not null"`
	Body          string         `gorm:"column:body"`
	Platforms     string         `gorm:"column:platforms;not null"` // comma separated
	ScheduledAt   time.Time      `gorm:"column:scheduled_at;index"`
	Status        string         `gorm:"column:status;index;not null"`
	MediaStatus   string         `gorm:"column:media_status;not null"`
	MediaVariants sql.NullString `gorm:"column:media_variants"` // JSON platform -> path
	GenericMedia  sql.NullString `gorm:"column:generic_media"`
	PlatformPosts sql.NullString `gorm:"column:platform_posts"` // JSON platform -> external id
	LastError     sql.NullString `gorm:"column:last_error"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	PublishedAt   *time.Time     `gorm:"column:published_at"`
}

func (contentModel) TableName() string {
	return "content_items"
}

type contentRepository struct {
	db *gorm.DB
}

func NewContentRepository(db *gorm.DB) content.IContentRepository {
	r := &contentRepository{db: db}
	if db != nil {
		if err := db.AutoMigrate(&contentModel{}); err != nil {
			logrus.WithError(err).Error("[CONTENT] failed to init schema")
		}
	} else {
		logrus.Error("[CONTENT] GORM DB is nil, repository will be disabled")
	}
	return r
}

func (r *contentRepository) ensureDB() error {
	if r.db == nil {
		return pkgError.InternalServerError("content storage is not initialized")
	}
	return nil
}

func (r *contentRepository) Create(ctx context.Context, item content.ContentItem) error {
	if err := r.ensureDB(); err != nil {
		return err
	}
	model, err := toContentModel(item)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *contentRepository) GetByID(ctx context.Context, id string) (content.ContentItem, error) {
	if err := r.ensureDB(); err != nil {
		return content.ContentItem{}, err
	}

	var model contentModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", strings.TrimSpace(id)).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return content.ContentItem{}, pkgError.NotFoundError("content item not found")
		}
		return content.ContentItem{}, err
	}
	return fromContentModel(model), nil
}

func (r *contentRepository) GetDueScheduledItems(ctx context.Context, now time.Time) ([]content.ContentItem, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}

	var models []contentModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", string(content.StatusScheduled), now).
		Order("scheduled_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	items := make([]content.ContentItem, len(models))
	for i, m := range models {
		items[i] = fromContentModel(m)
	}
	return items, nil
}

func (r *contentRepository) GetItemsNeedingMedia(ctx context.Context) ([]content.ContentItem, error) {
	if err := r.ensureDB(); err != nil {
		return nil, err
	}

	var models []contentModel
	err := r.db.WithContext(ctx).
		Where("media_status = ? AND status = ?", string(content.MediaPending), string(content.StatusScheduled)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	items := make([]content.ContentItem, len(models))
	for i, m := range models {
		items[i] = fromContentModel(m)
	}
	return items, nil
}

func (r *contentRepository) UpdateStatus(ctx context.Context, id string, update content.StatusUpdate) error {
	if err := r.ensureDB(); err != nil {
		return err
	}

	var model contentModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgError.NotFoundError("content item not found")
		}
		return err
	}

	model.Status = string(update.Status)
	model.LastError = sql.NullString{String: update.LastError, Valid: update.LastError != ""}
	if update.PublishedAt != nil {
		model.PublishedAt = update.PublishedAt
	}

	// Per-platform external ids are merged, never replaced, so a partial
	// failure keeps the record of platforms that already succeeded.
	if len(update.PlatformPosts) > 0 {
		posts := decodeStringMap(model.PlatformPosts)
		for platform, externalID := range update.PlatformPosts {
			posts[platform] = externalID
		}
		encoded, err := json.Marshal(posts)
		if err != nil {
			return err
		}
		model.PlatformPosts = sql.NullString{String: string(encoded), Valid: true}
	}

	return r.db.WithContext(ctx).Save(&model).Error
}

func (r *contentRepository) SetMediaStatus(ctx context.Context, id string, status content.MediaStatus) error {
	if err := r.ensureDB(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&contentModel{}).
		Where("id = ?", id).
		Update("media_status", string(status)).Error
}

// --- Helpers ---

func toContentModel(item content.ContentItem) (contentModel, error) {
	model := contentModel{
		ID:           item.ID,
		UserID:       item.UserID,
		Body:         item.Body,
		Platforms:    strings.Join(item.Platforms, ","),
		ScheduledAt:  item.ScheduledAt.UTC(),
		Status:       string(item.Status),
		MediaStatus:  string(item.MediaStatus),
		GenericMedia: sql.NullString{String: item.GenericMedia, Valid: item.GenericMedia != ""},
		LastError:    sql.NullString{String: item.LastError, Valid: item.LastError != ""},
		PublishedAt:  item.PublishedAt,
	}

	if len(item.MediaVariants) > 0 {
		encoded, err := json.Marshal(item.MediaVariants)
		if err != nil {
			return contentModel{}, err
		}
		model.MediaVariants = sql.NullString{String: string(encoded), Valid: true}
	}
	if len(item.PlatformPosts) > 0 {
		encoded, err := json.Marshal(item.PlatformPosts)
		if err != nil {
			return contentModel{}, err
		}
		model.PlatformPosts = sql.NullString{String: string(encoded), Valid: true}
	}

	return model, nil
}

func fromContentModel(m contentModel) content.ContentItem {
	item := content.ContentItem{
		ID:            m.ID,
		UserID:        m.UserID,
		Body:          m.Body,
		ScheduledAt:   m.ScheduledAt,
		Status:        content.Status(m.Status),
		MediaStatus:   content.MediaStatus(m.MediaStatus),
		MediaVariants: decodeStringMap(m.MediaVariants),
		GenericMedia:  nullStringValue(m.GenericMedia),
		PlatformPosts: decodeStringMap(m.PlatformPosts),
		LastError:     nullStringValue(m.LastError),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		PublishedAt:   m.PublishedAt,
	}
	if m.Platforms != "" {
		item.Platforms = strings.Split(m.Platforms, ",")
	}
	return item
}

func decodeStringMap(ns sql.NullString) map[string]string {
	out := make(map[string]string)
	if !ns.Valid || ns.String == "" {
		return out
	}
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		logrus.WithError(err).Warn("[CONTENT] failed to decode stored map, treating as empty")
	}
	return out
}

// nullStringValue returns a trimmed string or empty if null.
func nullStringValue(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return strings.TrimSpace(ns.String)
}
