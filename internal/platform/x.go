package platform

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/Mayur-00/crosspost-api/configs"
	"github.com/Mayur-00/crosspost-api/internal/models"
	"github.com/Mayur-00/crosspost-api/internal/transfer"
)

const xAuthorizeURL = "https://x.com/i/oauth2/authorize"

type XPublisher struct {
	cfg     config.Config
	client  *http.Client
	apiBase string
}

func NewXPublisher(cfg config.Config) *XPublisher {
	return &XPublisher{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		apiBase: "https://api.x.com",
	}
}

func (p *XPublisher) Platform() string {
	return models.PlatformX
}

func (p *XPublisher) RequiresPKCE() bool {
	return true
}

func (p *XPublisher) AuthURL(state, challenge string) string {
	params := url.Values{}
	params.Add("response_type", "code")
	params.Add("client_id", p.cfg.XClientID)
	params.Add("redirect_uri", p.cfg.XRedirectURI)
	params.Add("scope", "tweet.read tweet.write users.read media.write offline.access")
	params.Add("state", state)
	params.Add("code_challenge", challenge)
	params.Add("code_challenge_method", "S256")

	return fmt.Sprintf("%s?%s", xAuthorizeURL, params.Encode())
}

func (p *XPublisher) basicAuth() string {
	return base64.StdEncoding.EncodeToString([]byte(p.cfg.XClientID + ":" + p.cfg.XClientSecret))
}

func (p *XPublisher) tokenRequest(ctx context.Context, step string, data url.Values) (*transfer.XTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/2/oauth2/token", strings.NewReader(data.Encode()))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+p.basicAuth())

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, transportError(models.PlatformX, step, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, statusError(models.PlatformX, step, resp, string(body))
	}

	var tokenResponse transfer.XTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	return &tokenResponse, nil
}

func (p *XPublisher) ExchangeCode(ctx context.Context, code, verifier string) (*TokenPair, error) {
	data := url.Values{}
	data.Set("code", code)
	data.Set("grant_type", "authorization_code")
	data.Set("client_id", p.cfg.XClientID)
	data.Set("redirect_uri", p.cfg.XRedirectURI)
	data.Set("code_verifier", verifier)

	tokenResponse, err := p.tokenRequest(ctx, "exchange_code", data)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  tokenResponse.AccessToken,
		RefreshToken: tokenResponse.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tokenResponse.ExpiresIn) * time.Second),
	}, nil
}

func (p *XPublisher) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	data := url.Values{}
	data.Set("refresh_token", refreshToken)
	data.Set("grant_type", "refresh_token")

	tokenResponse, err := p.tokenRequest(ctx, "refresh_token", data)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  tokenResponse.AccessToken,
		RefreshToken: tokenResponse.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tokenResponse.ExpiresIn) * time.Second),
	}, nil
}

func (p *XPublisher) UserProfile(ctx context.Context, accessToken string) (*AccountProfile, error) {
	reqURL := p.apiBase + "/2/users/me?user.fields=id,name,username,profile_image_url"
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, transportError(models.PlatformX, "user_profile", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(models.PlatformX, "user_profile", resp, string(body))
	}

	var userInfo transfer.XUserInfoResponse
	if err := json.Unmarshal(body, &userInfo); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &AccountProfile{
		PlatformUserID: userInfo.Data.ID,
		Name:           userInfo.Data.Name,
		Username:       userInfo.Data.Username,
		Picture:        userInfo.Data.ProfileImageURL,
		Raw:            body,
	}, nil
}

func (p *XPublisher) PublishText(ctx context.Context, acc *models.SocialAccount, accessToken, text string) (*PublishResult, error) {
	return p.publishTweet(ctx, acc, accessToken, text, nil)
}

// PublishMedia uploads the media bytes first and references the returned
// media id in the tweet. The upload and the publish fail independently.
func (p *XPublisher) PublishMedia(ctx context.Context, acc *models.SocialAccount, accessToken, text string, media []byte, mimeType string) (*PublishResult, error) {
	mediaID, err := p.uploadMedia(ctx, accessToken, media, mimeType)
	if err != nil {
		return nil, err
	}

	return p.publishTweet(ctx, acc, accessToken, text, []string{mediaID})
}

func (p *XPublisher) uploadMedia(ctx context.Context, accessToken string, media []byte, mimeType string) (string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	part, err := form.CreateFormFile("media", "upload")
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	if _, err := part.Write(media); err != nil {
		slog.Info(err.Error())
		return "", err
	}
	if err := form.WriteField("media_type", mimeType); err != nil {
		slog.Info(err.Error())
		return "", err
	}
	if err := form.WriteField("media_category", "tweet_image"); err != nil {
		slog.Info(err.Error())
		return "", err
	}
	if err := form.Close(); err != nil {
		slog.Info(err.Error())
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/2/media/upload", &buf)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", transportError(models.PlatformX, "upload_media", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", statusError(models.PlatformX, "upload_media", resp, string(body))
	}

	var uploadResponse transfer.XMediaUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploadResponse); err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return uploadResponse.Data.ID, nil
}

func (p *XPublisher) publishTweet(ctx context.Context, acc *models.SocialAccount, accessToken, text string, mediaIDs []string) (*PublishResult, error) {
	tweet := transfer.TweetRequest{Text: text}
	if len(mediaIDs) > 0 {
		tweet.Media = &transfer.TweetMedia{MediaIDs: mediaIDs}
	}

	jsonData, err := json.Marshal(tweet)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/2/tweets", bytes.NewBuffer(jsonData))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, transportError(models.PlatformX, "publish_tweet", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return nil, statusError(models.PlatformX, "publish_tweet", resp, string(body))
	}

	var tweetResponse transfer.TweetResponse
	if err := json.NewDecoder(resp.Body).Decode(&tweetResponse); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &PublishResult{
		PlatformPostID: tweetResponse.Data.ID,
		PostURL:        fmt.Sprintf("https://x.com/%s/status/%s", acc.AccountUsername, tweetResponse.Data.ID),
	}, nil
}
