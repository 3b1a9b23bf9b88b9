// Package tiktok publishes stories through the TikTok Content Posting API.
package tiktok

import (
	"bytes"
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

const httpTimeout = 30 * time.Second

var httpClient = &http.Client{Timeout: httpTimeout}

type Adapter struct {
	cfg config.PlatformAPIConfig
}

func NewAdapter(cfg config.PlatformAPIConfig) *Adapter {
	return &Adapter{cfg: cfg}
}

func (a *Adapter) Platform() string {
	return platforms.TikTok
}

type publishRequest struct {
	PostInfo   postInfo   `json:"post_info"`
	SourceInfo sourceInfo `json:"source_info"`
}

type postInfo struct {
	Title          string `json:"title"`
	PrivacyLevel   string `json:"privacy_level"`
	DisableComment bool   `json:"disable_comment"`
}

type sourceInfo struct {
	Source   string `json:"source"`
	VideoURL string `json:"video_url"`
}

type publishResponse struct {
	Data struct {
		PublishID string `json:"publish_id"`
	} `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Adapter) Publish(ctx context.Context, req platforms.PublishRequest) (platforms.PublishResult, error) {
	if req.MediaPath == "" {
		return platforms.PublishResult{}, pkgError.ConfigurationError{
			Platform: platforms.TikTok,
			Reason:   "tiktok requires a video asset",
		}
	}

	payload := publishRequest{
		PostInfo: postInfo{
			Title:        req.Item.Body,
			PrivacyLevel: "PUBLIC_TO_EVERYONE",
		},
		SourceInfo: sourceInfo{
			Source:   "PULL_FROM_URL",
			VideoURL: req.MediaPath,
		},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return platforms.PublishResult{}, err
	}

	endpoint := fmt.Sprintf("%s/post/publish/video/init/", a.cfg.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return platforms.PublishResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.Account.AccessToken)

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return platforms.PublishResult{}, platforms.MapNetworkError(platforms.TikTok, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return platforms.PublishResult{}, platforms.MapHTTPError(platforms.TikTok, req.Account.ID, resp.StatusCode, string(body))
	}

	var parsed publishResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return platforms.PublishResult{}, platforms.MapNetworkError(platforms.TikTok, err)
	}
	// TikTok reports some failures with a 200 status and an error envelope.
	if parsed.Error.Code != "" && parsed.Error.Code != "ok" {
		return platforms.PublishResult{}, pkgError.TransientPlatformError{
			Platform: platforms.TikTok,
			Err:      fmt.Errorf("%s: %s", parsed.Error.Code, parsed.Error.Message),
		}
	}

	logrus.Debugf("[TIKTOK] Published item %s as %s", req.Item.ID, parsed.Data.PublishID)
	return platforms.PublishResult{ExternalID: parsed.Data.PublishID}, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (a *Adapter) RefreshCredential(ctx context.Context, acc account.Account) (platforms.RefreshedCredential, error) {
	if acc.RefreshToken == "" {
		return platforms.RefreshedCredential{}, pkgError.CredentialError{
			Platform:  platforms.TikTok,
			AccountID: acc.ID,
			Err:       fmt.Errorf("no refresh token on file"),
		}
	}

	form := url.Values{}
	form.Set("client_key", a.cfg.ClientID)
	form.Set("client_secret", a.cfg.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", acc.RefreshToken)

	endpoint := fmt.Sprintf("%s/oauth/token/", a.cfg.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return platforms.RefreshedCredential{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return platforms.RefreshedCredential{}, platforms.MapNetworkError(platforms.TikTok, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return platforms.RefreshedCredential{}, platforms.MapHTTPError(platforms.TikTok, acc.ID, resp.StatusCode, string(body))
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return platforms.RefreshedCredential{}, platforms.MapNetworkError(platforms.TikTok, err)
	}

	return platforms.RefreshedCredential{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresIn:    time.Duration(parsed.ExpiresIn) * time.Second,
	}, nil
}
