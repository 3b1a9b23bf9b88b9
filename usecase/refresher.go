package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/storylinehq/publisher/domains/account"
	"github.com/storylinehq/publisher/platforms"
	pkgError "github.com/storylinehq/publisher/pkg/error"
)

var (
	errNotRefreshable = errors.New("account does not allow refresh")
	errEmptyToken     = errors.New("platform returned an empty access token")
)

// RefreshFailure records one account that could not be refreshed. The rest
// of the batch is unaffected.
type RefreshFailure struct {
	AccountID string `json:"account_id"`
	Platform  string `json:"platform"`
	Message   string `json:"message"`
}

// ICredentialRefresher brings a batch of accounts into a publishable state
// before dispatch. An account that cannot be refreshed is flagged and kept
// in the returned slice with its stale credential: the dispatch attempt then
// surfaces the platform's credential error, which is retriable, and the next
// cycle retries the refresh.
type ICredentialRefresher interface {
	EnsureFresh(ctx context.Context, accounts []account.Account) ([]account.Account, []RefreshFailure)
}

type credentialRefresher struct {
	accountRepo   account.IAccountRepository
	registry      *platforms.Registry
	refreshWindow time.Duration
	now           func() time.Time
}

func NewCredentialRefresher(accountRepo account.IAccountRepository, registry *platforms.Registry, refreshWindow time.Duration) ICredentialRefresher {
	return &credentialRefresher{
		accountRepo:   accountRepo,
		registry:      registry,
		refreshWindow: refreshWindow,
		now:           time.Now,
	}
}

func (r *credentialRefresher) EnsureFresh(ctx context.Context, accounts []account.Account) ([]account.Account, []RefreshFailure) {
	now := r.now()
	fresh := make([]account.Account, 0, len(accounts))
	var failures []RefreshFailure

	for _, acc := range accounts {
		if !r.needsRefresh(acc, now) {
			fresh = append(fresh, acc)
			continue
		}

		refreshed, err := r.refreshOne(ctx, acc, now)
		if err != nil {
			logrus.WithError(err).Warnf("[REFRESHER] Refresh failed for %s account %s", acc.Platform, acc.ID)
			failures = append(failures, RefreshFailure{
				AccountID: acc.ID,
				Platform:  acc.Platform,
				Message:   err.Error(),
			})
			if updateErr := r.accountRepo.UpdateAccountCredential(ctx, acc.ID, account.CredentialUpdate{
				Status: account.StatusError,
			}); updateErr != nil {
				logrus.WithError(updateErr).Errorf("[REFRESHER] Failed to flag account %s", acc.ID)
			}
			// Keep the account in play with its stale credential. Dropping
			// it would turn a token-endpoint blip into a permanent
			// no-usable-account failure.
			acc.Status = account.StatusError
			fresh = append(fresh, acc)
			continue
		}
		fresh = append(fresh, refreshed)
	}

	return fresh, failures
}

func (r *credentialRefresher) needsRefresh(acc account.Account, now time.Time) bool {
	if acc.Status == account.StatusError || acc.Status == account.StatusExpired {
		return true
	}
	return acc.TokenExpiresWithin(now, r.refreshWindow)
}

func (r *credentialRefresher) refreshOne(ctx context.Context, acc account.Account, now time.Time) (account.Account, error) {
	if !acc.CanRefresh {
		return account.Account{}, pkgError.CredentialError{
			Platform:  acc.Platform,
			AccountID: acc.ID,
			Err:       errNotRefreshable,
		}
	}

	adapter, ok := r.registry.Get(acc.Platform)
	if !ok {
		return account.Account{}, pkgError.ConfigurationError{
			Platform: acc.Platform,
			Reason:   "no adapter registered",
		}
	}

	cred, err := adapter.RefreshCredential(ctx, acc)
	if err != nil {
		return account.Account{}, err
	}
	if cred.AccessToken == "" {
		return account.Account{}, pkgError.CredentialError{
			Platform:  acc.Platform,
			AccountID: acc.ID,
			Err:       errEmptyToken,
		}
	}

	update := account.CredentialUpdate{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Status:       account.StatusActive,
	}
	if cred.ExpiresIn > 0 {
		update.TokenExpiresAt = now.Add(cred.ExpiresIn)
	}
	if err := r.accountRepo.UpdateAccountCredential(ctx, acc.ID, update); err != nil {
		return account.Account{}, err
	}

	acc.AccessToken = cred.AccessToken
	if cred.RefreshToken != "" {
		acc.RefreshToken = cred.RefreshToken
	}
	acc.TokenExpiresAt = update.TokenExpiresAt
	acc.Status = account.StatusActive

	logrus.Infof("[REFRESHER] Refreshed %s account %s, token valid until %s",
		acc.Platform, acc.ID, acc.TokenExpiresAt.Format(time.RFC3339))
	return acc, nil
}
