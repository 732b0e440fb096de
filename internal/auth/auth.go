// Package auth obtains and refreshes presence API access tokens. Teams uses
// the OAuth device authorization grant with a persisted refresh token; Zoom
// uses a server-to-server account credentials grant.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/thefoeyouknow/Teams-Pod/internal/settings"
	"golang.org/x/oauth2"
)

// ExpiringSoon is how close to expiry a token is refreshed ahead of use.
const ExpiringSoon = 5 * time.Minute

// Device code defaults used when the provider omits them.
const (
	DefaultCodeLifetime = 900 * time.Second
	DefaultPollInterval = 5 * time.Second
)

// ErrNotInteractive is returned by providers that have no user sign-in step.
var ErrNotInteractive = errors.New("auth: platform has no interactive flow")

// PollResult is the outcome of one device code token poll.
type PollResult int

const (
	// PollPending means the user has not finished signing in yet.
	PollPending PollResult = iota
	// PollSuccess means a token was issued.
	PollSuccess
	// PollFailure is a transient failure that counts against the retry budget.
	PollFailure
	// PollFatal ends the session.
	PollFatal
)

func (r PollResult) String() string {
	switch r {
	case PollPending:
		return "pending"
	case PollSuccess:
		return "success"
	case PollFailure:
		return "failure"
	default:
		return "fatal"
	}
}

// Session is an in-progress device code sign-in.
type Session struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	QRURL           string
	ExpiresAt       time.Time
	Interval        time.Duration
	// Failures counts consecutive transient poll failures.
	Failures int
}

// Expired reports whether the device code is past its deadline.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// QRURL builds the sign-in link with the code prefilled.
func QRURL(verificationURI, userCode string) string {
	return verificationURI + "?otc=" + strings.ReplaceAll(userCode, "-", "")
}

// Provider is one platform's token source.
type Provider interface {
	StartInteractiveAuth(ctx context.Context) (*Session, error)
	PollForToken(ctx context.Context, s *Session) PollResult
	Refresh(ctx context.Context) bool
	HasValidToken() bool
	IsExpiringSoon() bool
	AccessToken() string
}

// TokenStore persists the long-lived refresh token.
type TokenStore interface {
	RefreshToken() (string, error)
	SaveRefreshToken(token string) error
	ClearRefreshToken() error
}

// New returns the provider for the provisioned platform.
func New(cr settings.Credentials, store TokenStore, client *http.Client) Provider {
	if cr.Platform == settings.PlatformZoom {
		return NewZoom(cr.TenantID, cr.ClientID, cr.ClientSecret, client)
	}
	return NewTeams(cr.ClientID, cr.TenantID, store, client)
}

// tokenState tracks the current access token against an injectable clock.
type tokenState struct {
	token *oauth2.Token
	now   func() time.Time
}

func (t *tokenState) HasValidToken() bool {
	return t.token != nil && t.token.AccessToken != "" && t.now().Before(t.token.Expiry)
}

func (t *tokenState) IsExpiringSoon() bool {
	return t.token != nil && !t.token.Expiry.IsZero() && t.token.Expiry.Sub(t.now()) < ExpiringSoon
}

func (t *tokenState) AccessToken() string {
	if t.token == nil {
		return ""
	}
	return t.token.AccessToken
}

func withClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}
