// Package instagram publishes stories through the Instagram Graph API's
// two-step container flow: create a media container, then publish it.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/storylinehq/publisher/core/config"
	"github.com/storylinehq/publisher/domains/account"
	"github.com/storylinehq/publisher/platforms"
	pkgError "github.com/storylinehq/publisher/pkg/error"
)

const httpTimeout = 20 * time.Second

var httpClient = &http.Client{Timeout: httpTimeout}

type Adapter struct {
	cfg config.PlatformAPIConfig
}

func NewAdapter(cfg config.PlatformAPIConfig) *Adapter {
	return &Adapter{cfg: cfg}
}

func (a *Adapter) Platform() string {
	return platforms.Instagram
}

type idResponse struct {
	ID string `json:"id"`
}

func (a *Adapter) Publish(ctx context.Context, req platforms.PublishRequest) (platforms.PublishResult, error) {
	if req.MediaPath == "" {
		// Instagram has no text-only posts.
		return platforms.PublishResult{}, pkgError.ConfigurationError{
			Platform: platforms.Instagram,
			Reason:   "instagram requires a media asset",
		}
	}

	igUserID := req.Account.ExternalID

	containerID, err := a.createContainer(ctx, igUserID, req)
	if err != nil {
		return platforms.PublishResult{}, err
	}

	form := url.Values{}
	form.Set("creation_id", containerID)
	form.Set("access_token", req.Account.AccessToken)

	endpoint := fmt.Sprintf("%s/%s/media_publish", a.cfg.BaseURL, igUserID)
	parsed, err := a.postForm(ctx, endpoint, form, req.Account.ID)
	if err != nil {
		return platforms.PublishResult{}, err
	}

	logrus.Debugf("[INSTAGRAM] Published item %s as %s", req.Item.ID, parsed.ID)
	return platforms.PublishResult{ExternalID: parsed.ID}, nil
}

func (a *Adapter) createContainer(ctx context.Context, igUserID string, req platforms.PublishRequest) (string, error) {
	form := url.Values{}
	form.Set("image_url", req.MediaPath)
	form.Set("caption", req.Item.Body)
	form.Set("access_token", req.Account.AccessToken)

	endpoint := fmt.Sprintf("%s/%s/media", a.cfg.BaseURL, igUserID)
	parsed, err := a.postForm(ctx, endpoint, form, req.Account.ID)
	if err != nil {
		return "", err
	}
	return parsed.ID, nil
}

func (a *Adapter) postForm(ctx context.Context, endpoint string, form url.Values, accountID string) (idResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return idResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return idResponse{}, platforms.MapNetworkError(platforms.Instagram, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return idResponse{}, platforms.MapHTTPError(platforms.Instagram, accountID, resp.StatusCode, string(body))
	}

	var parsed idResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return idResponse{}, platforms.MapNetworkError(platforms.Instagram, err)
	}
	return parsed, nil
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (a *Adapter) RefreshCredential(ctx context.Context, acc account.Account) (platforms.RefreshedCredential, error) {
	query := url.Values{}
	query.Set("grant_type", "ig_refresh_token")
	query.Set("access_token", acc.AccessToken)

	endpoint := fmt.Sprintf("%s/refresh_access_token?%s", a.cfg.BaseURL, query.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return platforms.RefreshedCredential{}, err
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return platforms.RefreshedCredential{}, platforms.MapNetworkError(platforms.Instagram, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return platforms.RefreshedCredential{}, platforms.MapHTTPError(platforms.Instagram, acc.ID, resp.StatusCode, string(body))
	}

	var parsed refreshResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return platforms.RefreshedCredential{}, platforms.MapNetworkError(platforms.Instagram, err)
	}

	return platforms.RefreshedCredential{
		AccessToken: parsed.AccessToken,
		ExpiresIn:   time.Duration(parsed.ExpiresIn) * time.Second,
	}, nil
}
