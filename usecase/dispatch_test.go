package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/storylinehq/publisher/domains/account"
	"github.com/storylinehq/publisher/domains/content"
	"github.com/storylinehq/publisher/platforms"
	pkgError "github.com/storylinehq/publisher/pkg/error"
	"github.com/storylinehq/publisher/pkg/pubworker"
)

func newTestCoordinator(t *testing.T, adapters ...platforms.PlatformAdapter) IDispatchCoordinator {
	t.Helper()
	registry := platforms.NewRegistry()
	for _, adapter := range adapters {
		registry.Register(adapter)
	}
	pool := pubworker.NewPool(2, 20)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)
	return NewDispatchCoordinator(registry, pool, 5*time.Second)
}

func dispatchItem(platformList ...string) content.ContentItem {
	return content.ContentItem{
		ID:        "item-1",
		UserID:    "user-1",
		Body:      "hello",
		Platforms: platformList,
		Status:    content.StatusScheduled,
	}
}

func dispatchAccounts(platformList ...string) map[string]account.Account {
	out := make(map[string]account.Account)
	for _, p := range platformList {
		out[p] = account.Account{ID: "acc-" + p, Platform: p, AccessToken: "token"}
	}
	return out
}

func TestDispatch_AllPlatformsSucceed(t *testing.T) {
	coordinator := newTestCoordinator(t,
		&fakeAdapter{platform: "facebook"},
		&fakeAdapter{platform: "tiktok"},
	)

	outcome := coordinator.Dispatch(context.Background(), dispatchItem("facebook", "tiktok"), dispatchAccounts("facebook", "tiktok"))

	if !outcome.Succeeded() {
		t.Fatalf("expected aggregate success, got %+v", outcome)
	}
	posts := outcome.PlatformPosts()
	if posts["facebook"] != "post-item-1" || posts["tiktok"] != "post-item-1" {
		t.Fatalf("missing external ids: %v", posts)
	}
}

func TestDispatch_OneFailureFailsTheAggregate(t *testing.T) {
	failing := &fakeAdapter{
		platform: "tiktok",
		publishFn: func(req platforms.PublishRequest) (platforms.PublishResult, error) {
			return platforms.PublishResult{}, pkgError.TransientPlatformError{Platform: "tiktok", Err: errors.New("rate limited")}
		},
	}
	coordinator := newTestCoordinator(t, &fakeAdapter{platform: "facebook"}, failing)

	outcome := coordinator.Dispatch(context.Background(), dispatchItem("facebook", "tiktok"), dispatchAccounts("facebook", "tiktok"))

	if outcome.Succeeded() {
		t.Fatal("one platform failure must fail the aggregate")
	}
	if !outcome.Retriable() {
		t.Fatal("transient failures are retriable")
	}
	if posts := outcome.PlatformPosts(); posts["facebook"] == "" {
		t.Fatalf("the successful platform must still report its id: %v", posts)
	}
	if outcome.ErrorSummary() == "" {
		t.Fatal("expected an error summary")
	}
}

func TestDispatch_SkipsAlreadyPublishedPlatforms(t *testing.T) {
	fb := &fakeAdapter{platform: "facebook"}
	tt := &fakeAdapter{platform: "tiktok"}
	coordinator := newTestCoordinator(t, fb, tt)

	item := dispatchItem("facebook", "tiktok")
	item.PlatformPosts = map[string]string{"facebook": "fb-post-9"}

	outcome := coordinator.Dispatch(context.Background(), item, dispatchAccounts("facebook", "tiktok"))

	if !outcome.Succeeded() {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if got := len(fb.publishOrder()); got != 0 {
		t.Fatalf("already-published platform must be skipped, got %d calls", got)
	}
	if got := len(tt.publishOrder()); got != 1 {
		t.Fatalf("pending platform must be attempted, got %d calls", got)
	}
	// A skipped platform does not re-report its id; merging keeps the old one.
	if posts := outcome.PlatformPosts(); len(posts) != 1 || posts["tiktok"] == "" {
		t.Fatalf("unexpected posts: %v", posts)
	}
}

func TestDispatch_MissingAccountIsConfigurationError(t *testing.T) {
	coordinator := newTestCoordinator(t, &fakeAdapter{platform: "facebook"})

	outcome := coordinator.Dispatch(context.Background(), dispatchItem("facebook"), map[string]account.Account{})

	if outcome.Succeeded() {
		t.Fatal("missing account must fail the dispatch")
	}
	if outcome.Retriable() {
		t.Fatal("a missing account is not retriable")
	}
	var confErr pkgError.ConfigurationError
	if !errors.As(outcome.Outcomes[0].Err, &confErr) {
		t.Fatalf("expected configuration error, got %T", outcome.Outcomes[0].Err)
	}
}

func TestDispatch_UnknownPlatformIsConfigurationError(t *testing.T) {
	coordinator := newTestCoordinator(t, &fakeAdapter{platform: "facebook"})

	outcome := coordinator.Dispatch(context.Background(), dispatchItem("myspace"), dispatchAccounts("myspace"))

	if outcome.Succeeded() || outcome.Retriable() {
		t.Fatalf("unknown platform must fail without retry, got %+v", outcome)
	}
}

func TestDispatch_EmptyPlatformListNeverSucceeds(t *testing.T) {
	coordinator := newTestCoordinator(t, &fakeAdapter{platform: "facebook"})

	outcome := coordinator.Dispatch(context.Background(), dispatchItem(), nil)
	if outcome.Succeeded() {
		t.Fatal("an item without platforms cannot count as published")
	}
}
