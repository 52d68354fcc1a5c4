// Package auth owns the access/refresh token pair and its lifecycle. No
// other component persists or transmits credentials except through this
// manager.
package auth

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	apperrors "github.com/wirasto/fieldsync/internal/errors"
	"github.com/wirasto/fieldsync/internal/logging"
	"github.com/wirasto/fieldsync/internal/models"
)

// State is the token lifecycle state.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateValid           State = "valid"
	StateRefreshing      State = "refreshing"
	StateExpired         State = "expired"
)

// TokenPair is a fresh credential pair returned by the remote authority.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Refresher exchanges a refresh token for a new pair. Implemented by the
// API client; the call itself is exempt from credential injection.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
}

// CredentialStore persists the credential row. Implemented by db.Store.
type CredentialStore interface {
	SaveCredential(c *models.Credential) error
	LoadCredential() (*models.Credential, error)
	ClearCredential() error
}

type refreshResult struct {
	token string
	err   error
}

// Manager is the token lifecycle manager. Concurrent callers needing a
// token while a refresh is in flight collapse into that single refresh and
// all observe its outcome; a rotating-token server must never see two
// racing refresh calls.
type Manager struct {
	store          CredentialStore
	refresher      Refresher
	storageHosts   []string
	refreshTimeout time.Duration

	mu      sync.Mutex
	state   State
	cred    *models.Credential
	waiters []chan refreshResult
	subs    map[chan State]struct{}
}

// NewManager creates the manager and restores any persisted credential.
func NewManager(store CredentialStore, refresher Refresher, storageHosts []string) (*Manager, error) {
	m := &Manager{
		store:          store,
		refresher:      refresher,
		storageHosts:   storageHosts,
		refreshTimeout: 30 * time.Second,
		state:          StateUnauthenticated,
		subs:           make(map[chan State]struct{}),
	}

	cred, err := store.LoadCredential()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to load credential", err)
	}
	if cred != nil {
		m.cred = cred
		if cred.Expired(time.Now()) {
			m.state = StateExpired
		} else {
			m.state = StateValid
		}
	}

	return m, nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe returns a channel receiving state transitions and a cancel
// function. The channel is buffered; a slow consumer misses intermediate
// states, never blocks the manager.
func (m *Manager) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan State, 8)
	m.subs[ch] = struct{}{}

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// setStateLocked transitions the state and notifies subscribers.
// Caller holds m.mu.
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	for ch := range m.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// GetValidToken returns a bearer access token, refreshing if necessary.
// While a refresh is in flight the caller suspends and receives its result.
// An unauthenticated state returns ErrAuthRequired without a remote call.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()

	switch m.state {
	case StateValid:
		if !m.cred.Expired(time.Now()) {
			token := m.cred.AccessToken
			m.mu.Unlock()
			return token, nil
		}
		// Expiry hint passed since the last check.
		m.setStateLocked(StateExpired)

	case StateRefreshing:
		ch := make(chan refreshResult, 1)
		m.waiters = append(m.waiters, ch)
		m.mu.Unlock()
		select {
		case <-ctx.Done():
			return "", apperrors.Wrap(apperrors.ErrTimeout, "token wait cancelled", ctx.Err())
		case res := <-ch:
			return res.token, res.err
		}

	case StateUnauthenticated:
		m.mu.Unlock()
		return "", apperrors.New(apperrors.ErrAuthRequired, "not logged in")
	}

	// StateExpired: this caller performs the single refresh.
	if m.cred == nil || m.cred.RefreshToken == "" {
		m.setStateLocked(StateUnauthenticated)
		m.mu.Unlock()
		return "", apperrors.New(apperrors.ErrAuthRequired, "no refresh token")
	}

	refreshToken := m.cred.RefreshToken
	m.setStateLocked(StateRefreshing)
	m.mu.Unlock()

	return m.doRefresh(refreshToken)
}

// doRefresh performs the one in-flight refresh and fans the result out to
// every waiter. Uses a manager-owned timeout, not a caller context: the
// refresh outcome is shared state, so one caller backing out must not
// cancel it for everyone else.
func (m *Manager) doRefresh(refreshToken string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.refreshTimeout)
	defer cancel()

	pair, err := m.refresher.Refresh(ctx, refreshToken)

	m.mu.Lock()
	defer m.mu.Unlock()

	var res refreshResult
	if m.cred == nil || m.state != StateRefreshing {
		// Logout or a fresh login won the race while the refresh was in
		// flight. Its outcome is moot and must not resurrect the old
		// session; waiters re-authenticate.
		res.err = apperrors.New(apperrors.ErrAuthRequired, "session cleared during refresh")
	} else if err != nil {
		if apperrors.IsAuth(err) {
			// The refresh token itself was rejected; only a new login helps.
			m.setStateLocked(StateUnauthenticated)
			res.err = apperrors.Wrap(apperrors.ErrRefreshRejected, "refresh token rejected", err)
			logging.Warn("Refresh token rejected, re-login required")
		} else {
			// Transient: stay expired so the next caller retries the refresh.
			m.setStateLocked(StateExpired)
			res.err = err
		}
	} else {
		m.cred.AccessToken = pair.AccessToken
		if pair.RefreshToken != "" {
			m.cred.RefreshToken = pair.RefreshToken
		}
		if !pair.ExpiresAt.IsZero() {
			m.cred.ExpiresAt = pair.ExpiresAt.Unix()
		}
		if saveErr := m.store.SaveCredential(m.cred); saveErr != nil {
			logging.Error("Failed to persist refreshed credential", saveErr)
		}
		m.setStateLocked(StateValid)
		res.token = pair.AccessToken
	}

	for _, ch := range m.waiters {
		ch <- res
	}
	m.waiters = nil

	return res.token, res.err
}

// SetSession installs a credential pair after a successful login.
func (m *Manager) SetSession(userID models.UUID, pair *TokenPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred := &models.Credential{
		UserID:       userID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}
	if !pair.ExpiresAt.IsZero() {
		cred.ExpiresAt = pair.ExpiresAt.Unix()
	}

	if err := m.store.SaveCredential(cred); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to persist credential", err)
	}

	m.cred = cred
	m.setStateLocked(StateValid)
	return nil
}

// Logout clears the stored credential pair.
func (m *Manager) Logout() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.ClearCredential(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to clear credential", err)
	}

	m.cred = nil
	m.setStateLocked(StateUnauthenticated)
	return nil
}

// IsExempt reports whether a request URL must bypass credential injection:
// authentication endpoints, and presigned object-storage URLs whose own
// signature is the credential. Sending a bearer header to either would be
// wrong, and routing them through the manager could loop a refresh forever.
func (m *Manager) IsExempt(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	path := u.Path
	if strings.HasSuffix(path, "/auth/login") || strings.HasSuffix(path, "/auth/refresh") {
		return true
	}

	host := u.Hostname()
	for _, pattern := range m.storageHosts {
		if matchHost(pattern, host) {
			return true
		}
	}
	return false
}

// matchHost matches a host against a pattern, where a leading "*." matches
// any subdomain.
func matchHost(pattern, host string) bool {
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(host, pattern[1:]) // keep the dot
	}
	return pattern == host
}

// Token implements oauth2.TokenSource; the API client draws its bearer
// tokens through it. Refresh timing is owned by the manager, so no caller
// context is taken here.
func (m *Manager) Token() (*oauth2.Token, error) {
	access, err := m.GetValidToken(context.Background())
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: access,
		TokenType:   "Bearer",
	}, nil
}

var _ oauth2.TokenSource = (*Manager)(nil)
