package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/storylinehq/publisher/domains/account"
	"github.com/storylinehq/publisher/domains/content"
	"github.com/storylinehq/publisher/platforms"
	pkgError "github.com/storylinehq/publisher/pkg/error"
)

// --- Content repository fake ---

type fakeContentRepo struct {
	mu    sync.Mutex
	items map[string]content.ContentItem
}

func newFakeContentRepo(items ...content.ContentItem) *fakeContentRepo {
	repo := &fakeContentRepo{items: make(map[string]content.ContentItem)}
	for _, item := range items {
		repo.items[item.ID] = item
	}
	return repo
}

func (r *fakeContentRepo) Create(_ context.Context, item content.ContentItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = item
	return nil
}

func (r *fakeContentRepo) GetByID(_ context.Context, id string) (content.ContentItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return content.ContentItem{}, pkgError.NotFoundError("content item not found")
	}
	return item, nil
}

func (r *fakeContentRepo) GetDueScheduledItems(_ context.Context, now time.Time) ([]content.ContentItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []content.ContentItem
	for _, item := range r.items {
		if item.Status == content.StatusScheduled && !item.ScheduledAt.After(now) {
			due = append(due, item)
		}
	}
	return due, nil
}

func (r *fakeContentRepo) GetItemsNeedingMedia(_ context.Context) ([]content.ContentItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []content.ContentItem
	for _, item := range r.items {
		if item.MediaStatus == content.MediaPending {
			pending = append(pending, item)
		}
	}
	return pending, nil
}

func (r *fakeContentRepo) UpdateStatus(_ context.Context, id string, update content.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return pkgError.NotFoundError("content item not found")
	}
	item.Status = update.Status
	item.LastError = update.LastError
	if update.PublishedAt != nil {
		item.PublishedAt = update.PublishedAt
	}
	if len(update.PlatformPosts) > 0 {
		if item.PlatformPosts == nil {
			item.PlatformPosts = make(map[string]string)
		}
		for platform, externalID := range update.PlatformPosts {
			item.PlatformPosts[platform] = externalID
		}
	}
	r.items[id] = item
	return nil
}

func (r *fakeContentRepo) SetMediaStatus(_ context.Context, id string, status content.MediaStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return pkgError.NotFoundError("content item not found")
	}
	item.MediaStatus = status
	r.items[id] = item
	return nil
}

func (r *fakeContentRepo) get(id string) content.ContentItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id]
}

// --- Account repository fake ---

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]account.Account
	usage    map[string]int
}

func newFakeAccountRepo(accounts ...account.Account) *fakeAccountRepo {
	repo := &fakeAccountRepo{
		accounts: make(map[string]account.Account),
		usage:    make(map[string]int),
	}
	for _, acc := range accounts {
		repo.accounts[acc.ID] = acc
	}
	return repo
}

func (r *fakeAccountRepo) Create(_ context.Context, acc account.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[acc.ID] = acc
	return nil
}

func (r *fakeAccountRepo) GetByID(_ context.Context, id string) (account.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[id]
	if !ok {
		return account.Account{}, pkgError.NotFoundError("account not found")
	}
	return acc, nil
}

func (r *fakeAccountRepo) GetAccountsForUser(_ context.Context, userID string) ([]account.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []account.Account
	for _, acc := range r.accounts {
		if acc.UserID == userID {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) GetActiveAccountsForUser(_ context.Context, userID string) ([]account.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []account.Account
	for _, acc := range r.accounts {
		if acc.UserID == userID && acc.Status == account.StatusActive && acc.CanPublish {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) UpdateAccountCredential(_ context.Context, id string, update account.CredentialUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[id]
	if !ok {
		return pkgError.NotFoundError("account not found")
	}
	acc.Status = update.Status
	if update.AccessToken != "" {
		acc.AccessToken = update.AccessToken
	}
	if update.RefreshToken != "" {
		acc.RefreshToken = update.RefreshToken
	}
	if !update.TokenExpiresAt.IsZero() {
		acc.TokenExpiresAt = update.TokenExpiresAt
	}
	r.accounts[id] = acc
	return nil
}

func (r *fakeAccountRepo) IncrementUsage(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[id]
	if !ok {
		return pkgError.NotFoundError("account not found")
	}
	acc.DailyUsed++
	acc.MonthlyUsed++
	acc.LastPublishAt = &at
	r.accounts[id] = acc
	r.usage[id]++
	return nil
}

func (r *fakeAccountRepo) usageCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage[id]
}

func (r *fakeAccountRepo) get(id string) account.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id]
}

// --- Platform adapter fake ---

type fakeAdapter struct {
	platform  string
	mu        sync.Mutex
	published []string // item ids in call order
	publishFn func(req platforms.PublishRequest) (platforms.PublishResult, error)
	refreshFn func(acc account.Account) (platforms.RefreshedCredential, error)
}

func (a *fakeAdapter) Platform() string { return a.platform }

func (a *fakeAdapter) Publish(_ context.Context, req platforms.PublishRequest) (platforms.PublishResult, error) {
	a.mu.Lock()
	a.published = append(a.published, req.Item.ID)
	a.mu.Unlock()
	if a.publishFn != nil {
		return a.publishFn(req)
	}
	return platforms.PublishResult{ExternalID: "post-" + req.Item.ID}, nil
}

func (a *fakeAdapter) RefreshCredential(_ context.Context, acc account.Account) (platforms.RefreshedCredential, error) {
	if a.refreshFn != nil {
		return a.refreshFn(acc)
	}
	return platforms.RefreshedCredential{AccessToken: "fresh-token", ExpiresIn: 48 * time.Hour}, nil
}

func (a *fakeAdapter) publishOrder() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.published))
	copy(out, a.published)
	return out
}

// --- Misc stubs ---

type fakeMediaGenerator struct {
	mu        sync.Mutex
	requested []string
}

func (g *fakeMediaGenerator) RequestGeneration(item content.ContentItem) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requested = append(g.requested, item.ID)
}

func (g *fakeMediaGenerator) requestedIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.requested))
	copy(out, g.requested)
	return out
}

// passthroughRefresher hands every account back untouched.
type passthroughRefresher struct{}

func (passthroughRefresher) EnsureFresh(_ context.Context, accounts []account.Account) ([]account.Account, []RefreshFailure) {
	return accounts, nil
}
