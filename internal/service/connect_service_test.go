package service

import (
	"context"
	"testing"
	"time"

	"github.com/Mayur-00/crosspost-api/internal/models"
	"github.com/Mayur-00/crosspost-api/internal/platform"
	"github.com/Mayur-00/crosspost-api/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConnector struct {
	platformName string
	pkce         bool
	lastVerifier string
	pair         *platform.TokenPair
	profile      *platform.AccountProfile
}

func (c *fakeConnector) Platform() string {
	return c.platformName
}

func (c *fakeConnector) RequiresPKCE() bool {
	return c.pkce
}

func (c *fakeConnector) AuthURL(state, challenge string) string {
	return "https://auth.example.com/authorize?state=" + state + "&code_challenge=" + challenge
}

func (c *fakeConnector) ExchangeCode(ctx context.Context, code, verifier string) (*platform.TokenPair, error) {
	c.lastVerifier = verifier
	return c.pair, nil
}

func (c *fakeConnector) UserProfile(ctx context.Context, accessToken string) (*platform.AccountProfile, error) {
	return c.profile, nil
}

func connectFixture(accounts *fakeAccountRepo) (ConnectService, *fakeSessionRepo, *fakeConnector) {
	sessions := newFakeSessionRepo()
	connector := &fakeConnector{
		platformName: models.PlatformX,
		pkce:         true,
		pair: &platform.TokenPair{
			AccessToken:  "x-access",
			RefreshToken: "x-refresh",
			ExpiresAt:    time.Now().Add(2 * time.Hour),
		},
		profile: &platform.AccountProfile{
			PlatformUserID: "12345",
			Name:           "Jordan",
			Username:       "jordan",
		},
	}
	cs := NewConnectService(testTokenConfig(), NewSessionService(sessions), accounts, connector)
	return cs, sessions, connector
}

func TestConnectAuthURLCarriesSessionState(t *testing.T) {
	cs, sessions, _ := connectFixture(newFakeAccountRepo())

	authURL, err := cs.AuthURL(context.Background(), 7, models.PlatformX)
	require.NoError(t, err)

	require.Len(t, sessions.sessions, 1)
	for state := range sessions.sessions {
		assert.Contains(t, authURL, "state="+state)
	}
	assert.Contains(t, authURL, "code_challenge=")
}

func TestConnectAuthURLUnsupportedPlatform(t *testing.T) {
	cs, _, _ := connectFixture(newFakeAccountRepo())

	_, err := cs.AuthURL(context.Background(), 7, "myspace")
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestConnectCallbackStoresAccount(t *testing.T) {
	accounts := newFakeAccountRepo()
	cs, sessions, connector := connectFixture(accounts)

	_, err := cs.AuthURL(context.Background(), 7, models.PlatformX)
	require.NoError(t, err)

	var state, verifier string
	for s, session := range sessions.sessions {
		state = s
		verifier = session.CodeVerifier
	}

	userID, err := cs.Callback(context.Background(), models.PlatformX, state, "auth-code")
	require.NoError(t, err)
	assert.Equal(t, int64(7), userID)

	// The stored verifier was released to the token exchange.
	assert.Equal(t, verifier, connector.lastVerifier)

	acc, err := accounts.GetActive(context.Background(), 7, models.PlatformX)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, "12345", acc.AccountID)
	assert.Equal(t, "jordan", acc.AccountUsername)

	// Tokens are never stored in the clear.
	assert.NotEqual(t, "x-access", acc.AccessToken)
	decrypted, err := utils.Decrypt(acc.AccessToken, []byte(testSecretKey))
	require.NoError(t, err)
	assert.Equal(t, "x-access", decrypted)
}

func TestConnectCallbackReplayRejected(t *testing.T) {
	cs, sessions, _ := connectFixture(newFakeAccountRepo())

	_, err := cs.AuthURL(context.Background(), 7, models.PlatformX)
	require.NoError(t, err)

	var state string
	for s := range sessions.sessions {
		state = s
	}

	_, err = cs.Callback(context.Background(), models.PlatformX, state, "auth-code")
	require.NoError(t, err)

	_, err = cs.Callback(context.Background(), models.PlatformX, state, "auth-code")
	assert.ErrorIs(t, err, ErrSessionAlreadyUsed)
}

func TestConnectCallbackForgedState(t *testing.T) {
	cs, _, _ := connectFixture(newFakeAccountRepo())

	_, err := cs.Callback(context.Background(), models.PlatformX, "forged-state", "auth-code")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConnectCallbackPlatformMismatch(t *testing.T) {
	accounts := newFakeAccountRepo()
	sessions := newFakeSessionRepo()
	x := &fakeConnector{platformName: models.PlatformX, pkce: true}
	li := &fakeConnector{
		platformName: models.PlatformLinkedin,
		pair:         &platform.TokenPair{AccessToken: "li-access"},
		profile:      &platform.AccountProfile{PlatformUserID: "li-1"},
	}
	cs := NewConnectService(testTokenConfig(), NewSessionService(sessions), accounts, x, li)

	_, err := cs.AuthURL(context.Background(), 7, models.PlatformX)
	require.NoError(t, err)

	var state string
	for s := range sessions.sessions {
		state = s
	}

	_, err = cs.Callback(context.Background(), models.PlatformLinkedin, state, "auth-code")
	assert.Error(t, err)
}

func TestConnectReplacesPriorActiveAccount(t *testing.T) {
	accounts := newFakeAccountRepo(validAccount(t, 1))
	accounts.accounts[1].UserID = 7
	cs, sessions, _ := connectFixture(accounts)

	_, err := cs.AuthURL(context.Background(), 7, models.PlatformX)
	require.NoError(t, err)

	var state string
	for s := range sessions.sessions {
		state = s
	}

	_, err = cs.Callback(context.Background(), models.PlatformX, state, "auth-code")
	require.NoError(t, err)

	assert.Equal(t, models.AccountStatusExpired, accounts.statuses[1])

	active, err := accounts.GetActive(context.Background(), 7, models.PlatformX)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "12345", active.AccountID)
}
