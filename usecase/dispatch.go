package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/storylinehq/publisher/domains/account"
	"github.com/storylinehq/publisher/domains/content"
	"github.com/storylinehq/publisher/platforms"
	pkgError "github.com/storylinehq/publisher/pkg/error"
	"github.com/storylinehq/publisher/pkg/pubworker"
)

// PlatformOutcome is the result of one platform attempt within a dispatch.
type PlatformOutcome struct {
	Platform   string
	AccountID  string
	ExternalID string
	Skipped    bool // already published on a prior attempt
	Err        error
}

// DispatchOutcome aggregates the per-platform results for one item. An item
// counts as published only when every target platform either succeeded now
// or succeeded on a prior attempt.
type DispatchOutcome struct {
	ItemID   string
	Outcomes []PlatformOutcome
}

// Succeeded reports whether the aggregate publish succeeded.
func (o DispatchOutcome) Succeeded() bool {
	for _, out := range o.Outcomes {
		if out.Err != nil {
			return false
		}
	}
	return len(o.Outcomes) > 0
}

// Retriable reports whether any failure is worth another attempt. An outcome
// with only configuration failures needs an operator, not a backoff.
func (o DispatchOutcome) Retriable() bool {
	for _, out := range o.Outcomes {
		if out.Err != nil && pkgError.IsRetriable(out.Err) {
			return true
		}
	}
	return false
}

// PlatformPosts returns the external ids won in this dispatch, for merging
// into the item's persisted map.
func (o DispatchOutcome) PlatformPosts() map[string]string {
	posts := make(map[string]string)
	for _, out := range o.Outcomes {
		if out.Err == nil && !out.Skipped && out.ExternalID != "" {
			posts[out.Platform] = out.ExternalID
		}
	}
	return posts
}

// ErrorSummary flattens the failures into one message for LastError.
func (o DispatchOutcome) ErrorSummary() string {
	var parts []string
	for _, out := range o.Outcomes {
		if out.Err != nil {
			parts = append(parts, out.Platform+": "+out.Err.Error())
		}
	}
	return strings.Join(parts, "; ")
}

// IDispatchCoordinator fans one item out to its target platforms and blocks
// until every attempt has resolved. It never mutates the item; the scheduler
// is the single writer of content state.
type IDispatchCoordinator interface {
	Dispatch(ctx context.Context, item content.ContentItem, accounts map[string]account.Account) DispatchOutcome
}

type dispatchCoordinator struct {
	registry       *platforms.Registry
	pool           *pubworker.Pool
	publishTimeout time.Duration
}

func NewDispatchCoordinator(registry *platforms.Registry, pool *pubworker.Pool, publishTimeout time.Duration) IDispatchCoordinator {
	if publishTimeout <= 0 {
		publishTimeout = 30 * time.Second
	}
	return &dispatchCoordinator{
		registry:       registry,
		pool:           pool,
		publishTimeout: publishTimeout,
	}
}

func (d *dispatchCoordinator) Dispatch(ctx context.Context, item content.ContentItem, accounts map[string]account.Account) DispatchOutcome {
	outcome := DispatchOutcome{ItemID: item.ID}

	var mu sync.Mutex
	var wg sync.WaitGroup
	record := func(out PlatformOutcome) {
		mu.Lock()
		outcome.Outcomes = append(outcome.Outcomes, out)
		mu.Unlock()
	}

	for _, platform := range item.Platforms {
		platform := platform

		if item.PublishedTo(platform) {
			record(PlatformOutcome{Platform: platform, ExternalID: item.PlatformPosts[platform], Skipped: true})
			continue
		}

		adapter, ok := d.registry.Get(platform)
		if !ok {
			record(PlatformOutcome{Platform: platform, Err: pkgError.ConfigurationError{
				Platform: platform,
				Reason:   "platform is not enabled",
			}})
			continue
		}

		acc, ok := accounts[platform]
		if !ok {
			record(PlatformOutcome{Platform: platform, Err: pkgError.ConfigurationError{
				Platform: platform,
				Reason:   "no usable account for user " + item.UserID,
			}})
			continue
		}

		wg.Add(1)
		job := pubworker.PublishJob{
			ItemID:   item.ID,
			Platform: platform,
			Handler: func(context.Context) error {
				defer wg.Done()

				// The cycle's context governs the call, not the worker's;
				// a stopping pool still drains in-flight dispatches.
				callCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
				defer cancel()

				result, err := adapter.Publish(callCtx, platforms.PublishRequest{
					Item:      item,
					Account:   acc,
					MediaPath: item.MediaFor(platform),
				})
				if err != nil {
					record(PlatformOutcome{Platform: platform, AccountID: acc.ID, Err: err})
					return err
				}
				record(PlatformOutcome{Platform: platform, AccountID: acc.ID, ExternalID: result.ExternalID})
				return nil
			},
		}

		if !d.pool.TryDispatch(job) {
			wg.Done()
			record(PlatformOutcome{Platform: platform, AccountID: acc.ID, Err: pkgError.TransientPlatformError{
				Platform: platform,
				Err:      errors.New("publish worker queue full"),
			}})
		}
	}

	wg.Wait()

	logrus.Debugf("[DISPATCH] Item %s resolved on %d platforms, success=%t",
		item.ID, len(outcome.Outcomes), outcome.Succeeded())
	return outcome
}
