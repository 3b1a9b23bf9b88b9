package platforms

import (
	"context"
	"time"

	"github.com/storylinehq/publisher/domains/account"
	"github.com/storylinehq/publisher/domains/content"
)

const (
	Facebook  = "facebook"
	Instagram = "instagram"
	TikTok    = "tiktok"
)

// PublishRequest carries everything an adapter needs for one publish call.
// MediaPath is the best-available variant for the platform, already resolved
// by the coordinator; empty means a text-only post.
type PublishRequest struct {
	Item      content.ContentItem
	Account   account.Account
	MediaPath string
}

// PublishResult is the success variant of a publish call.
type PublishResult struct {
	ExternalID string
}

// RefreshedCredential is the success variant of a credential refresh.
type RefreshedCredential struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// PlatformAdapter is implemented once per platform. Failures come back as
// typed errors from pkg/error so callers can decide on retry vs. refresh
// vs. operator attention.
type PlatformAdapter interface {
	Platform() string
	Publish(ctx context.Context, req PublishRequest) (PublishResult, error)
	RefreshCredential(ctx context.Context, acc account.Account) (RefreshedCredential, error)
}
