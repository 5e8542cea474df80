package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"calsplit/internal/model"
	"calsplit/internal/store"
)

// State is the session's position in the sign-in lifecycle.
type State string

const (
	// StateSignedOut means no usable credential exists.
	StateSignedOut State = "signed_out"
	// StateRedirecting means a sign-in redirect has been issued and the
	// callback has not arrived yet.
	StateRedirecting State = "redirecting"
	// StateSignedIn means a credential is held. It may still be rejected
	// by the remote service; a 401 there is what actually ends it.
	StateSignedIn State = "signed_in"
)

// ErrStateMismatch marks a callback whose echoed state does not match the
// stored anti-forgery value. The callback must not produce a session.
var ErrStateMismatch = fmt.Errorf("%w: state mismatch", ErrProtocol)

// Manager owns the auth session: an explicit object passed to whoever needs
// it, with an injected invalidation callback instead of global state.
//
// The credential's recorded expiry is advisory. Sign-in state survives past
// it, and only a remote 401 (via Invalidate) or an explicit SignOut ends it.
type Manager struct {
	mu            sync.Mutex
	store         *store.SessionStore
	flow          *Flow
	state         State
	cred          *model.Credential
	lastError     string
	onInvalidated func(reason string)
	logger        *slog.Logger
	now           func() time.Time
}

// NewManager creates a signed-out Manager. Call Resume to pick up a
// persisted credential.
func NewManager(st *store.SessionStore, flow *Flow, logger *slog.Logger) *Manager {
	return &Manager{
		store:  st,
		flow:   flow,
		state:  StateSignedOut,
		logger: logger,
		now:    time.Now,
	}
}

// SetOnInvalidated registers the callback run when a remote authentication
// failure forces the session out.
func (m *Manager) SetOnInvalidated(fn func(reason string)) {
	m.mu.Lock()
	m.onInvalidated = fn
	m.mu.Unlock()
}

// Resume loads a persisted credential, if any, and enters SignedIn without
// any network round trip. The credential is resumed even past its advisory
// expiry; the calendar API gets the final say.
func (m *Manager) Resume() error {
	cred, err := m.store.Credential()
	if err != nil {
		return err
	}
	if cred == nil {
		return nil
	}

	m.mu.Lock()
	m.cred = cred
	m.state = StateSignedIn
	m.mu.Unlock()

	if cred.ExpiredBy(m.now()) {
		m.logger.Info("resumed credential past its recorded expiry; keeping it until the API rejects it")
	} else {
		m.logger.Info("resumed stored credential", "expires", cred.Expiry)
	}
	return nil
}

// BeginSignIn generates and persists a fresh anti-forgery state and returns
// the authorization URL to redirect the user to.
func (m *Manager) BeginSignIn() (string, error) {
	state, err := GenerateState()
	if err != nil {
		return "", err
	}
	if err := m.store.SaveState(state); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.state = StateRedirecting
	m.lastError = ""
	m.mu.Unlock()

	return m.flow.AuthURL(state), nil
}

// HandleCallback consumes one authorization callback. The stored
// anti-forgery state is discarded on every outcome; a mismatched state
// never produces SignedIn, regardless of credential validity.
func (m *Manager) HandleCallback(values url.Values) error {
	saved, err := m.store.TakeState()
	if err != nil {
		return err
	}

	cb, err := ParseCallback(values)
	if err != nil {
		m.fail("Sign-in failed. Please sign in again.")
		return err
	}

	if saved == "" || cb.State != saved {
		m.fail("Sign-in could not be verified. Please sign in again.")
		return ErrStateMismatch
	}

	cred := model.Credential{
		Token:  cb.Token,
		Expiry: m.now().Add(time.Duration(cb.ExpiresIn) * time.Second),
	}
	if err := m.store.SaveCredential(cred); err != nil {
		return err
	}

	m.mu.Lock()
	m.cred = &cred
	m.state = StateSignedIn
	m.lastError = ""
	m.mu.Unlock()

	m.logger.Info("signed in", "expires", cred.Expiry)
	return nil
}

func (m *Manager) fail(msg string) {
	m.mu.Lock()
	m.state = StateSignedOut
	m.cred = nil
	m.lastError = msg
	m.mu.Unlock()
}

// Invalidate handles a remote authentication failure: the credential is
// cleared, the session drops straight to SignedOut, and the registered
// callback fires. Re-entering the redirect flow is the only way back in.
func (m *Manager) Invalidate(reason string) {
	if err := m.store.ClearCredential(); err != nil {
		m.logger.Error("clear credential", "error", err)
	}

	m.mu.Lock()
	wasSignedIn := m.state == StateSignedIn
	m.state = StateSignedOut
	m.cred = nil
	m.lastError = reason
	fn := m.onInvalidated
	m.mu.Unlock()

	if wasSignedIn {
		m.logger.Warn("session invalidated", "reason", reason)
		if fn != nil {
			fn(reason)
		}
	}
}

// SignOut clears the credential and any pending redirect state. Signing out
// while signed out is a no-op.
func (m *Manager) SignOut() error {
	if err := m.store.ClearCredential(); err != nil {
		return err
	}
	if _, err := m.store.TakeState(); err != nil {
		return err
	}

	m.mu.Lock()
	m.state = StateSignedOut
	m.cred = nil
	m.lastError = ""
	m.mu.Unlock()

	m.logger.Info("signed out")
	return nil
}

// Credential returns a copy of the held credential, or false if signed out.
func (m *Manager) Credential() (model.Credential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil {
		return model.Credential{}, false
	}
	return *m.cred, true
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastError returns the most recent user-facing auth message, if any.
func (m *Manager) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

// IsProtocolError reports whether err came from a malformed or forged
// authorization callback.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrProtocol)
}
