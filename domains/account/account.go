package account

import (
	"context"
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusExpired  Status = "expired"
	StatusError    Status = "error"
)

// Account holds one platform credential with its quota counters.
// Invariant: a non-empty access token whenever Status is active.
type Account struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Platform       string     `json:"platform"`
	ExternalID     string     `json:"external_id"` // platform-side account/page id
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	TokenExpiresAt time.Time  `json:"token_expires_at"`
	Status         Status     `json:"status"`
	CanPublish     bool       `json:"can_publish"`
	CanRefresh     bool       `json:"can_refresh"`
	DailyUsed      int        `json:"daily_used"`
	DailyLimit     int        `json:"daily_limit"`
	MonthlyUsed    int        `json:"monthly_used"`
	MonthlyLimit   int        `json:"monthly_limit"`
	QuotaResetAt   time.Time  `json:"quota_reset_at"`
	LastPublishAt  *time.Time `json:"last_publish_at,omitempty"`
	AvgEngagement  float64    `json:"avg_engagement"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TokenExpiresWithin reports whether the access token expires before now+window.
func (a Account) TokenExpiresWithin(now time.Time, window time.Duration) bool {
	if a.TokenExpiresAt.IsZero() {
		return false
	}
	return a.TokenExpiresAt.Before(now.Add(window))
}

// CredentialUpdate carries the fields a credential refresh is allowed to touch.
type CredentialUpdate struct {
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
	Status         Status
}

type IAccountRepository interface {
	Create(ctx context.Context, acc Account) error
	GetByID(ctx context.Context, id string) (Account, error)
	GetAccountsForUser(ctx context.Context, userID string) ([]Account, error)
	GetActiveAccountsForUser(ctx context.Context, userID string) ([]Account, error)
	UpdateAccountCredential(ctx context.Context, id string, update CredentialUpdate) error
	IncrementUsage(ctx context.Context, id string, at time.Time) error
}
