package content

import (
	"context"
	"time"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

type MediaStatus string

const (
	MediaNone    MediaStatus = "none"    // item has no media requirement
	MediaPending MediaStatus = "pending" // media required, rendering not finished
	MediaReady   MediaStatus = "ready"
)

// ContentItem is a schedulable unit ("story") with one or more target platforms.
type ContentItem struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	Body          string            `json:"body"`
	Platforms     []string          `json:"platforms"`
	ScheduledAt   time.Time         `json:"scheduled_at"`
	Status        Status            `json:"status"`
	MediaStatus   MediaStatus       `json:"media_status"`
	MediaVariants map[string]string `json:"media_variants,omitempty"` // platform -> rendered asset path
	GenericMedia  string            `json:"generic_media,omitempty"`
	PlatformPosts map[string]string `json:"platform_posts,omitempty"` // platform -> external post id
	LastError     string            `json:"last_error,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	PublishedAt   *time.Time        `json:"published_at,omitempty"`
}

// NeedsMedia reports whether the item requires media that is not ready yet.
func (i ContentItem) NeedsMedia() bool {
	return i.MediaStatus == MediaPending
}

// MediaFor returns the best media asset for a platform, falling back to the
// generic variant. Empty string means no media.
func (i ContentItem) MediaFor(platform string) string {
	if path, ok := i.MediaVariants[platform]; ok && path != "" {
		return path
	}
	return i.GenericMedia
}

// PublishedTo reports whether the item already holds an external post id for
// the platform, so retries can skip it.
func (i ContentItem) PublishedTo(platform string) bool {
	_, ok := i.PlatformPosts[platform]
	return ok
}

// StatusUpdate carries the fields a status transition is allowed to touch.
// The scheduler is the single writer; nothing else mutates items directly.
type StatusUpdate struct {
	Status        Status
	LastError     string
	PlatformPosts map[string]string // merged into the stored map, never replaced
	PublishedAt   *time.Time
}

type IContentRepository interface {
	Create(ctx context.Context, item ContentItem) error
	GetByID(ctx context.Context, id string) (ContentItem, error)
	GetDueScheduledItems(ctx context.Context, now time.Time) ([]ContentItem, error)
	GetItemsNeedingMedia(ctx context.Context) ([]ContentItem, error)
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) error
	SetMediaStatus(ctx context.Context, id string, status MediaStatus) error
}

// IMediaGenerator is the one-way trigger into the external rendering pipeline.
// The scheduler never awaits it; readiness is observed via MediaStatus on
// later cycles.
type IMediaGenerator interface {
	RequestGeneration(item ContentItem)
}
