package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Mayur-00/crosspost-api/internal/models"
	"github.com/Mayur-00/crosspost-api/internal/platform"
	"github.com/Mayur-00/crosspost-api/internal/service"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPostRepo struct {
	mu       sync.Mutex
	posts    map[int64]*models.Post
	statuses map[int64]string
}

func newStubPostRepo(posts ...*models.Post) *stubPostRepo {
	f := &stubPostRepo{posts: make(map[int64]*models.Post), statuses: make(map[int64]string)}
	for _, p := range posts {
		copied := *p
		f.posts[p.ID] = &copied
	}
	return f
}

func (f *stubPostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	return 0, errors.New("not used")
}

func (f *stubPostRepo) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.posts[id]
	if !ok {
		return nil, nil
	}
	copied := *post
	return &copied, nil
}

func (f *stubPostRepo) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	return nil, nil
}

func (f *stubPostRepo) UpdateStatus(ctx context.Context, status string, postID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[postID] = status
	return nil
}

func (f *stubPostRepo) UpdateSchedule(ctx context.Context, postID int64, scheduledTime time.Time) error {
	return nil
}

func (f *stubPostRepo) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	return true, nil
}

func (f *stubPostRepo) Remove(ctx context.Context, id int64) error {
	return nil
}

type stubAccountRepo struct {
	accounts map[string]*models.SocialAccount
}

func newStubAccountRepo(accounts ...*models.SocialAccount) *stubAccountRepo {
	f := &stubAccountRepo{accounts: make(map[string]*models.SocialAccount)}
	for _, acc := range accounts {
		f.accounts[acc.Platform] = acc
	}
	return f
}

func (f *stubAccountRepo) Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	return 0, errors.New("not used")
}

func (f *stubAccountRepo) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	for _, acc := range f.accounts {
		if acc.ID == id {
			return acc, nil
		}
	}
	return nil, nil
}

func (f *stubAccountRepo) GetActive(ctx context.Context, userID int64, platformName string) (*models.SocialAccount, error) {
	acc, ok := f.accounts[platformName]
	if !ok || acc.UserID != userID {
		return nil, nil
	}
	return acc, nil
}

func (f *stubAccountRepo) ListInfoByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (f *stubAccountRepo) ListExpiring(ctx context.Context, before time.Time) ([]*models.SocialAccount, error) {
	return nil, nil
}

func (f *stubAccountRepo) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	return true, nil
}

func (f *stubAccountRepo) UpdateTokens(ctx context.Context, accountID int64, oldAccessToken string, sa *models.SocialAccount) error {
	return nil
}

func (f *stubAccountRepo) MarkStatus(ctx context.Context, accountID int64, status string) error {
	return nil
}

func (f *stubAccountRepo) Remove(ctx context.Context, id int64) error {
	return nil
}

type stubPlatformPostRepo struct {
	mu      sync.Mutex
	records []*models.PlatformPost
	nextID  int64
}

func (f *stubPlatformPostRepo) Create(ctx context.Context, pp *models.PlatformPost) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	copied := *pp
	copied.ID = f.nextID
	f.records = append(f.records, &copied)
	return f.nextID, nil
}

func (f *stubPlatformPostRepo) GetPosted(ctx context.Context, postID int64, platformName string) (*models.PlatformPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pp := range f.records {
		if pp.PostID == postID && pp.Platform == platformName && pp.Status == models.PlatformPostStatusPosted {
			copied := *pp
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *stubPlatformPostRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.PlatformPost, error) {
	return nil, nil
}

func (f *stubPlatformPostRepo) RemoveByPostID(ctx context.Context, postID int64) error {
	return nil
}

func (f *stubPlatformPostRepo) byPlatform(platformName string) *models.PlatformPost {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pp := range f.records {
		if pp.Platform == platformName {
			return pp
		}
	}
	return nil
}

type stubTokenService struct {
	tokens map[int64]string
	errs   map[int64]error
}

func (f *stubTokenService) UsableToken(ctx context.Context, acc *models.SocialAccount) (string, error) {
	if err, ok := f.errs[acc.ID]; ok {
		return "", err
	}
	return f.tokens[acc.ID], nil
}

func (f *stubTokenService) RefreshExpiring(ctx context.Context, acc *models.SocialAccount, within time.Duration) error {
	return nil
}

type stubPublisher struct {
	platformName string
	publishErr   error
	textCalls    atomic.Int64
	mediaCalls   atomic.Int64
	lastMedia    []byte
	lastMime     string
	lastToken    string
}

func (p *stubPublisher) Platform() string {
	return p.platformName
}

func (p *stubPublisher) PublishText(ctx context.Context, acc *models.SocialAccount, accessToken, text string) (*platform.PublishResult, error) {
	p.textCalls.Add(1)
	p.lastToken = accessToken
	if p.publishErr != nil {
		return nil, p.publishErr
	}
	return &platform.PublishResult{
		PlatformPostID: p.platformName + "-post-1",
		PostURL:        "https://" + p.platformName + ".example.com/post-1",
	}, nil
}

func (p *stubPublisher) PublishMedia(ctx context.Context, acc *models.SocialAccount, accessToken, text string, media []byte, mimeType string) (*platform.PublishResult, error) {
	p.mediaCalls.Add(1)
	p.lastMedia = media
	p.lastMime = mimeType
	return p.PublishText(ctx, acc, accessToken, text)
}

func (p *stubPublisher) RefreshToken(ctx context.Context, refreshToken string) (*platform.TokenPair, error) {
	return nil, errors.New("not used")
}

func publishTask(t *testing.T, payload PublishPayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(TaskTypePublishPost, data)
}

type workerFixture struct {
	worker   *Worker
	posts    *stubPostRepo
	outcomes *stubPlatformPostRepo
	x        *stubPublisher
	linkedin *stubPublisher
}

func newWorkerFixture(t *testing.T, post *models.Post) *workerFixture {
	t.Helper()

	posts := newStubPostRepo(post)
	accounts := newStubAccountRepo(
		&models.SocialAccount{ID: 1, UserID: 1, Platform: models.PlatformX, AccountStatus: models.AccountStatusActive, AccountUsername: "jordan"},
		&models.SocialAccount{ID: 2, UserID: 1, Platform: models.PlatformLinkedin, AccountStatus: models.AccountStatusActive, AccountID: "li-person-1"},
	)
	outcomes := &stubPlatformPostRepo{}
	tokens := &stubTokenService{tokens: map[int64]string{1: "x-token", 2: "li-token"}, errs: map[int64]error{}}
	x := &stubPublisher{platformName: models.PlatformX}
	linkedin := &stubPublisher{platformName: models.PlatformLinkedin}

	worker := NewWorker(posts, accounts, outcomes, tokens, platform.NewRegistry(x, linkedin), platform.NewMediaFetcher())
	return &workerFixture{worker: worker, posts: posts, outcomes: outcomes, x: x, linkedin: linkedin}
}

func (fx *workerFixture) tokenService() *stubTokenService {
	return fx.worker.tokens.(*stubTokenService)
}

func textPost() *models.Post {
	return &models.Post{ID: 10, UserID: 1, Content: "hello world", Status: models.PostStatusScheduled}
}

func TestHandlePublishTaskAllPlatforms(t *testing.T) {
	fx := newWorkerFixture(t, textPost())

	err := fx.worker.HandlePublishTask(context.Background(), publishTask(t, PublishPayload{
		PostID:    10,
		UserID:    1,
		Platforms: []string{models.PlatformX, models.PlatformLinkedin},
	}))
	require.NoError(t, err)

	assert.Equal(t, int64(1), fx.x.textCalls.Load())
	assert.Equal(t, int64(1), fx.linkedin.textCalls.Load())
	assert.Equal(t, "x-token", fx.x.lastToken)

	xOutcome := fx.outcomes.byPlatform(models.PlatformX)
	require.NotNil(t, xOutcome)
	assert.Equal(t, models.PlatformPostStatusPosted, xOutcome.Status)
	assert.Equal(t, "x-post-1", xOutcome.PlatformPostID)

	assert.Equal(t, models.PostStatusPosted, fx.posts.statuses[10])
}

func TestHandlePublishTaskSkipsAlreadyPosted(t *testing.T) {
	fx := newWorkerFixture(t, textPost())

	_, err := fx.outcomes.Create(context.Background(), &models.PlatformPost{
		PostID:   10,
		Platform: models.PlatformX,
		Status:   models.PlatformPostStatusPosted,
	})
	require.NoError(t, err)

	err = fx.worker.HandlePublishTask(context.Background(), publishTask(t, PublishPayload{
		PostID:    10,
		UserID:    1,
		Platforms: []string{models.PlatformX, models.PlatformLinkedin},
	}))
	require.NoError(t, err)

	// The already-posted platform is not published twice.
	assert.Zero(t, fx.x.textCalls.Load())
	assert.Equal(t, int64(1), fx.linkedin.textCalls.Load())
	assert.Equal(t, models.PostStatusPosted, fx.posts.statuses[10])
}

func TestHandlePublishTaskExpiredAccountContinuesSiblings(t *testing.T) {
	fx := newWorkerFixture(t, textPost())
	fx.tokenService().errs[1] = service.ErrAccountExpired

	err := fx.worker.HandlePublishTask(context.Background(), publishTask(t, PublishPayload{
		PostID:    10,
		UserID:    1,
		Platforms: []string{models.PlatformX, models.PlatformLinkedin},
	}))
	require.NoError(t, err)

	// The expired branch gets a FAILED outcome, the sibling still publishes.
	xOutcome := fx.outcomes.byPlatform(models.PlatformX)
	require.NotNil(t, xOutcome)
	assert.Equal(t, models.PlatformPostStatusFailed, xOutcome.Status)
	assert.NotEmpty(t, xOutcome.ErrorMessage)

	liOutcome := fx.outcomes.byPlatform(models.PlatformLinkedin)
	require.NotNil(t, liOutcome)
	assert.Equal(t, models.PlatformPostStatusPosted, liOutcome.Status)

	assert.Equal(t, models.PostStatusFailed, fx.posts.statuses[10])
}

func TestHandlePublishTaskPermanentErrorRecorded(t *testing.T) {
	fx := newWorkerFixture(t, textPost())
	fx.x.publishErr = &platform.PublishError{
		Kind:     platform.KindPermanentRequest,
		Platform: models.PlatformX,
		Step:     "publish_tweet",
		Status:   400,
		Message:  "text too long",
	}

	err := fx.worker.HandlePublishTask(context.Background(), publishTask(t, PublishPayload{
		PostID:    10,
		UserID:    1,
		Platforms: []string{models.PlatformX},
	}))
	require.NoError(t, err)

	xOutcome := fx.outcomes.byPlatform(models.PlatformX)
	require.NotNil(t, xOutcome)
	assert.Equal(t, models.PlatformPostStatusFailed, xOutcome.Status)
	assert.Contains(t, xOutcome.ErrorMessage, "text too long")
	assert.Equal(t, models.PostStatusFailed, fx.posts.statuses[10])
}

func TestHandlePublishTaskRetryableErrorPropagates(t *testing.T) {
	fx := newWorkerFixture(t, textPost())
	fx.x.publishErr = &platform.PublishError{
		Kind:     platform.KindRateLimited,
		Platform: models.PlatformX,
		Step:     "publish_tweet",
		Status:   429,
	}

	err := fx.worker.HandlePublishTask(context.Background(), publishTask(t, PublishPayload{
		PostID:    10,
		UserID:    1,
		Platforms: []string{models.PlatformX, models.PlatformLinkedin},
	}))
	require.Error(t, err)

	// No FAILED row for the rate-limited branch; the retry owns it. The
	// sibling's success is already durable for the idempotency guard.
	assert.Nil(t, fx.outcomes.byPlatform(models.PlatformX))
	liOutcome := fx.outcomes.byPlatform(models.PlatformLinkedin)
	require.NotNil(t, liOutcome)
	assert.Equal(t, models.PlatformPostStatusPosted, liOutcome.Status)
}

func TestHandlePublishTaskNoActiveAccount(t *testing.T) {
	fx := newWorkerFixture(t, textPost())

	err := fx.worker.HandlePublishTask(context.Background(), publishTask(t, PublishPayload{
		PostID:    10,
		UserID:    99, // no accounts for this user
		Platforms: []string{models.PlatformX},
	}))
	require.NoError(t, err)

	xOutcome := fx.outcomes.byPlatform(models.PlatformX)
	require.NotNil(t, xOutcome)
	assert.Equal(t, models.PlatformPostStatusFailed, xOutcome.Status)
	assert.Equal(t, models.PostStatusFailed, fx.posts.statuses[10])
}

func TestHandlePublishTaskMissingPostSkipsRetry(t *testing.T) {
	fx := newWorkerFixture(t, textPost())

	err := fx.worker.HandlePublishTask(context.Background(), publishTask(t, PublishPayload{
		PostID:    999,
		UserID:    1,
		Platforms: []string{models.PlatformX},
	}))

	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlePublishTaskFetchesMedia(t *testing.T) {
	blobstore := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpegbytes"))
	}))
	defer blobstore.Close()

	post := textPost()
	post.MediaURL = blobstore.URL + "/posts/10.jpg"
	post.MediaType = "image/jpeg"
	fx := newWorkerFixture(t, post)

	err := fx.worker.HandlePublishTask(context.Background(), publishTask(t, PublishPayload{
		PostID:    10,
		UserID:    1,
		Platforms: []string{models.PlatformX},
	}))
	require.NoError(t, err)

	assert.Equal(t, int64(1), fx.x.mediaCalls.Load())
	assert.Equal(t, []byte("jpegbytes"), fx.x.lastMedia)
	assert.Equal(t, "image/jpeg", fx.x.lastMime)
}

func TestRetryDelayHonorsRetryAfter(t *testing.T) {
	err := &platform.PublishError{Kind: platform.KindRateLimited, RetryAfter: 90 * time.Second}
	assert.Equal(t, 90*time.Second, RetryDelay(0, err, nil))
}

func TestRetryDelayExponential(t *testing.T) {
	err := errors.New("transient")
	assert.Equal(t, 5*time.Second, RetryDelay(0, err, nil))
	assert.Equal(t, 10*time.Second, RetryDelay(1, err, nil))
	assert.Equal(t, 20*time.Second, RetryDelay(2, err, nil))
}
