package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/unicodeveloper/supplement-research/internal/models"
	"github.com/unicodeveloper/supplement-research/internal/storage"
)

const (
	keyCodeVerifier = "pkce_code_verifier"
	keyOAuthState   = "oauth_state"
	keyFormValues   = "pending_form_values"
)

// ErrNotConfigured means the PKCE flow cannot start: self-hosted mode, or one
// of client_id / auth_url / redirect_uri is missing.
var ErrNotConfigured = errors.New("auth: oauth is not configured")

// ErrStateMismatch means the callback's state token did not match the one
// persisted at initiation.
var ErrStateMismatch = errors.New("auth: oauth state mismatch")

// Initiator drives the OAuth PKCE round trip. The code verifier and state
// live in the session-scoped store — a process restart must never leave a
// reusable verifier behind. Pending form values go to the durable store so
// they survive the full navigation away and back.
type Initiator struct {
	clientID    string
	authBase    string
	redirectURI string

	session storage.Store
	durable storage.Store
	tokens  *TokenStore
	log     *slog.Logger
	client  *http.Client
}

func NewInitiator(clientID, authBase, redirectURI string, session, durable storage.Store, tokens *TokenStore, log *slog.Logger) *Initiator {
	return &Initiator{
		clientID:    clientID,
		authBase:    authBase,
		redirectURI: redirectURI,
		session:     session,
		durable:     durable,
		tokens:      tokens,
		log:         log,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (i *Initiator) configured() bool {
	return i.clientID != "" && i.authBase != "" && i.redirectURI != ""
}

func (i *Initiator) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    i.clientID,
		RedirectURL: i.redirectURI,
		Scopes:      []string{"openid", "profile", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  i.authBase + "/auth/v1/oauth/authorize",
			TokenURL: i.authBase + "/auth/v1/oauth/token",
		},
	}
}

// Begin generates the verifier, challenge and state, persists the exchange
// state and optional form values, and returns the authorization URL for a
// 302 redirect.
func (i *Initiator) Begin(form *models.ResearchRequest) (string, error) {
	if !i.configured() {
		i.log.Warn("oauth initiation skipped: missing client_id, auth_url or redirect_uri")
		return "", ErrNotConfigured
	}

	verifier, err := NewVerifier()
	if err != nil {
		return "", err
	}
	state, err := NewState()
	if err != nil {
		return "", err
	}

	if err := i.session.Set(keyCodeVerifier, verifier); err != nil {
		return "", fmt.Errorf("persisting verifier: %w", err)
	}
	if err := i.session.Set(keyOAuthState, state); err != nil {
		return "", fmt.Errorf("persisting state: %w", err)
	}

	if form != nil {
		encoded, err := json.Marshal(form)
		if err != nil {
			return "", fmt.Errorf("encoding form values: %w", err)
		}
		if err := i.durable.Set(keyFormValues, string(encoded)); err != nil {
			return "", fmt.Errorf("persisting form values: %w", err)
		}
	}

	authURL := i.oauthConfig().AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", Challenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	i.log.Info("oauth flow initiated", slog.String("redirect_uri", i.redirectURI))

	return authURL, nil
}

// Callback completes the round trip: it consumes the persisted verifier and
// state exactly once (they are deleted even when the exchange fails),
// validates the CSRF state, exchanges the code, fetches the user profile and
// stores the session.
func (i *Initiator) Callback(ctx context.Context, code, state string) (*models.AuthSession, error) {
	if !i.configured() {
		return nil, ErrNotConfigured
	}

	verifier, verr := i.session.Get(keyCodeVerifier)
	storedState, serr := i.session.Get(keyOAuthState)

	// One-time use: a stale or leaked verifier must never be replayable.
	if err := i.session.DeleteAll(keyCodeVerifier, keyOAuthState); err != nil {
		return nil, fmt.Errorf("consuming exchange state: %w", err)
	}

	if verr != nil || serr != nil {
		return nil, errors.New("auth: no pending oauth exchange")
	}
	if subtle.ConstantTimeCompare([]byte(storedState), []byte(state)) != 1 {
		return nil, ErrStateMismatch
	}

	token, err := i.oauthConfig().Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}

	user, err := i.fetchUser(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	if err := i.tokens.SetSession(token.AccessToken, user); err != nil {
		return nil, err
	}

	i.log.Info("oauth sign-in completed", slog.String("user", user.Email))

	return &models.AuthSession{User: user, AccessToken: token.AccessToken}, nil
}

// RestoreFormValues pops the form values saved before the redirect. The
// values are delivered at most once; nil means nothing was stored.
func (i *Initiator) RestoreFormValues() (*models.ResearchRequest, error) {
	v, err := storage.Take(i.durable, keyFormValues)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var form models.ResearchRequest
	if err := json.Unmarshal([]byte(v), &form); err != nil {
		return nil, fmt.Errorf("decoding form values: %w", err)
	}
	return &form, nil
}

func (i *Initiator) fetchUser(ctx context.Context, accessToken string) (*models.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.authBase+"/auth/v1/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching user profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, body)
	}

	var u models.User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decoding user profile: %w", err)
	}
	return &u, nil
}
