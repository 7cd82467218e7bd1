package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/Mayur-00/crosspost-api/configs"
	"github.com/Mayur-00/crosspost-api/internal/models"
	"github.com/Mayur-00/crosspost-api/internal/transfer"
)

const linkedinAuthorizeURL = "https://www.linkedin.com/oauth/v2/authorization"

type LinkedinPublisher struct {
	cfg      config.Config
	client   *http.Client
	apiBase  string
	authBase string
}

func NewLinkedinPublisher(cfg config.Config) *LinkedinPublisher {
	return &LinkedinPublisher{
		cfg:      cfg,
		client:   &http.Client{Timeout: 30 * time.Second},
		apiBase:  "https://api.linkedin.com",
		authBase: "https://www.linkedin.com",
	}
}

func (p *LinkedinPublisher) Platform() string {
	return models.PlatformLinkedin
}

func (p *LinkedinPublisher) RequiresPKCE() bool {
	return false
}

func (p *LinkedinPublisher) AuthURL(state, challenge string) string {
	params := url.Values{}
	params.Add("response_type", "code")
	params.Add("client_id", p.cfg.LinkedinClientID)
	params.Add("redirect_uri", p.cfg.LinkedinRedirectURI)
	params.Add("scope", "openid profile email w_member_social")
	params.Add("state", state)

	return fmt.Sprintf("%s?%s", linkedinAuthorizeURL, params.Encode())
}

func (p *LinkedinPublisher) ExchangeCode(ctx context.Context, code, verifier string) (*TokenPair, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", p.cfg.LinkedinRedirectURI)
	data.Set("client_id", p.cfg.LinkedinClientID)
	data.Set("client_secret", p.cfg.LinkedinClientSecret)

	req, err := http.NewRequestWithContext(ctx, "POST", p.authBase+"/oauth/v2/accessToken", strings.NewReader(data.Encode()))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, transportError(models.PlatformLinkedin, "exchange_code", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, statusError(models.PlatformLinkedin, "exchange_code", resp, string(body))
	}

	var tokenResponse transfer.LinkedinTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	// LinkedIn does not issue refresh tokens on this product; expiry means
	// the user reconnects.
	return &TokenPair{
		AccessToken: tokenResponse.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(tokenResponse.ExpiresIn) * time.Second),
	}, nil
}

func (p *LinkedinPublisher) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return nil, ErrRefreshUnsupported
}

func (p *LinkedinPublisher) UserProfile(ctx context.Context, accessToken string) (*AccountProfile, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", p.apiBase+"/v2/userinfo", nil)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, transportError(models.PlatformLinkedin, "user_profile", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(models.PlatformLinkedin, "user_profile", resp, string(body))
	}

	var userInfo transfer.LinkedinUserInfo
	if err := json.Unmarshal(body, &userInfo); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &AccountProfile{
		PlatformUserID: userInfo.Sub,
		Name:           userInfo.Name,
		Username:       userInfo.Email,
		Picture:        userInfo.Picture,
		Raw:            body,
	}, nil
}

func (p *LinkedinPublisher) PublishText(ctx context.Context, acc *models.SocialAccount, accessToken, text string) (*PublishResult, error) {
	share := transfer.LinkedinShareRequest{
		Author:         "urn:li:person:" + acc.AccountID,
		LifecycleState: "PUBLISHED",
		SpecificContent: transfer.LinkedinSpecificContent{
			ShareContent: transfer.LinkedinShareContent{
				ShareCommentary:    transfer.LinkedinText{Text: text},
				ShareMediaCategory: "NONE",
			},
		},
		Visibility: transfer.LinkedinShareVisibility{MemberNetworkVisibility: "PUBLIC"},
	}

	return p.publishShare(ctx, accessToken, &share)
}

// PublishMedia runs LinkedIn's three-step protocol: register an upload slot,
// PUT the raw bytes to the returned URL, then publish a share referencing the
// asset URN. Each step fails independently and propagates its own error.
func (p *LinkedinPublisher) PublishMedia(ctx context.Context, acc *models.SocialAccount, accessToken, text string, media []byte, mimeType string) (*PublishResult, error) {
	uploadURL, asset, err := p.registerUpload(ctx, accessToken, acc.AccountID)
	if err != nil {
		return nil, err
	}

	if err := p.uploadBytes(ctx, accessToken, uploadURL, media); err != nil {
		return nil, err
	}

	share := transfer.LinkedinShareRequest{
		Author:         "urn:li:person:" + acc.AccountID,
		LifecycleState: "PUBLISHED",
		SpecificContent: transfer.LinkedinSpecificContent{
			ShareContent: transfer.LinkedinShareContent{
				ShareCommentary:    transfer.LinkedinText{Text: text},
				ShareMediaCategory: "IMAGE",
				Media: []transfer.LinkedinShareMedia{
					{Status: "READY", Media: asset},
				},
			},
		},
		Visibility: transfer.LinkedinShareVisibility{MemberNetworkVisibility: "PUBLIC"},
	}

	return p.publishShare(ctx, accessToken, &share)
}

func (p *LinkedinPublisher) registerUpload(ctx context.Context, accessToken, platformUserID string) (uploadURL, asset string, err error) {
	registerRequest := transfer.LinkedinRegisterUploadRequest{
		RegisterUploadRequest: transfer.LinkedinRegisterUpload{
			Recipes: []string{"urn:li:digitalmediaRecipe:feedshare-image"},
			Owner:   "urn:li:person:" + platformUserID,
			ServiceRelationships: []transfer.LinkedinServiceRelationship{
				{RelationshipType: "OWNER", Identifier: "urn:li:userGeneratedContent"},
			},
		},
	}

	jsonData, err := json.Marshal(registerRequest)
	if err != nil {
		slog.Info(err.Error())
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/v2/assets?action=registerUpload", bytes.NewBuffer(jsonData))
	if err != nil {
		slog.Info(err.Error())
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("LinkedIn-Version", "202401")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", "", transportError(models.PlatformLinkedin, "register_upload", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", "", statusError(models.PlatformLinkedin, "register_upload", resp, string(body))
	}

	var registerResponse transfer.LinkedinRegisterUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&registerResponse); err != nil {
		slog.Info(err.Error())
		return "", "", err
	}

	return registerResponse.Value.UploadMechanism.MediaUploadHTTPRequest.UploadURL,
		registerResponse.Value.Asset, nil
}

func (p *LinkedinPublisher) uploadBytes(ctx context.Context, accessToken, uploadURL string, media []byte) error {
	req, err := http.NewRequestWithContext(ctx, "PUT", uploadURL, bytes.NewReader(media))
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return transportError(models.PlatformLinkedin, "upload_bytes", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return statusError(models.PlatformLinkedin, "upload_bytes", resp, string(body))
	}

	return nil
}

func (p *LinkedinPublisher) publishShare(ctx context.Context, accessToken string, share *transfer.LinkedinShareRequest) (*PublishResult, error) {
	jsonData, err := json.Marshal(share)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/v2/ugcPosts", bytes.NewBuffer(jsonData))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, transportError(models.PlatformLinkedin, "publish_share", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, statusError(models.PlatformLinkedin, "publish_share", resp, string(body))
	}

	var shareResponse transfer.LinkedinShareResponse
	if err := json.NewDecoder(resp.Body).Decode(&shareResponse); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &PublishResult{
		PlatformPostID: shareResponse.ID,
		PostURL:        "https://www.linkedin.com/feed/update/" + shareResponse.ID,
	}, nil
}
