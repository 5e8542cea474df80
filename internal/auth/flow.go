package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
)

// ErrProtocol marks a malformed or forged authorization callback. The
// caller should surface a generic "please sign in again" message.
var ErrProtocol = errors.New("authorization protocol error")

// Flow builds the implicit-grant authorization redirect and parses the
// values the provider hands back. The implicit grant yields a single
// non-renewable bearer token; there is no refresh path.
type Flow struct {
	cfg oauth2.Config
}

// NewFlow prepares the redirect for the given OAuth client. The scope is
// read-only calendar access.
func NewFlow(clientID, redirectURL string) *Flow {
	return &Flow{
		cfg: oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURL,
			Scopes:      []string{calendar.CalendarReadonlyScope},
			Endpoint:    google.Endpoint,
		},
	}
}

// GenerateState produces a cryptographically random anti-forgery value.
func GenerateState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AuthURL returns the authorization endpoint URL for a new sign-in attempt
// carrying the given anti-forgery state.
func (f *Flow) AuthURL(state string) string {
	return f.cfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("response_type", "token"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// Callback is the parsed result of one authorization redirect.
type Callback struct {
	Token     string
	ExpiresIn int // seconds
	State     string
}

// ParseCallback extracts the credential, its lifetime, and the echoed state
// from the provider's return channel. A provider-reported error or a
// missing/garbled credential yields ErrProtocol.
func ParseCallback(values url.Values) (Callback, error) {
	if e := values.Get("error"); e != "" {
		desc := values.Get("error_description")
		if desc == "" {
			desc = e
		}
		return Callback{}, fmt.Errorf("%w: provider error: %s", ErrProtocol, desc)
	}

	token := values.Get("access_token")
	expires := values.Get("expires_in")
	if token == "" || expires == "" {
		return Callback{}, fmt.Errorf("%w: callback missing credential", ErrProtocol)
	}

	secs, err := strconv.Atoi(expires)
	if err != nil || secs <= 0 {
		return Callback{}, fmt.Errorf("%w: invalid expires_in %q", ErrProtocol, expires)
	}

	return Callback{
		Token:     token,
		ExpiresIn: secs,
		State:     values.Get("state"),
	}, nil
}
