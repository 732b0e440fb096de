package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultAuthority is the Microsoft identity platform host.
const DefaultAuthority = "https://login.microsoftonline.com"

const deviceCodeGrant = "urn:ietf:params:oauth:grant-type:device_code"

// Scopes requested for Teams presence.
var teamsScopes = []string{"https://graph.microsoft.com/Presence.Read", "offline_access"}

// Teams signs in with the device authorization grant against Azure AD.
type Teams struct {
	tokenState
	cfg    oauth2.Config
	store  TokenStore
	client *http.Client
}

// NewTeams returns a Teams provider for the given app registration.
func NewTeams(clientID, tenantID string, store TokenStore, client *http.Client) *Teams {
	return NewTeamsWithAuthority(DefaultAuthority, clientID, tenantID, store, client)
}

// NewTeamsWithAuthority is NewTeams against a non-default identity host.
func NewTeamsWithAuthority(authority, clientID, tenantID string, store TokenStore, client *http.Client) *Teams {
	if tenantID == "" {
		tenantID = "common"
	}
	base := strings.TrimRight(authority, "/") + "/" + tenantID + "/oauth2/v2.0"
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Teams{
		tokenState: tokenState{now: time.Now},
		cfg: oauth2.Config{
			ClientID: clientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:       base + "/authorize",
				DeviceAuthURL: base + "/devicecode",
				TokenURL:      base + "/token",
				AuthStyle:     oauth2.AuthStyleInParams,
			},
			Scopes: teamsScopes,
		},
		store:  store,
		client: client,
	}
}

// StartInteractiveAuth requests a device code for the user to enter.
func (t *Teams) StartInteractiveAuth(ctx context.Context) (*Session, error) {
	da, err := t.cfg.DeviceAuth(withClient(ctx, t.client))
	if err != nil {
		return nil, fmt.Errorf("request device code: %w", err)
	}

	s := &Session{
		DeviceCode:      da.DeviceCode,
		UserCode:        da.UserCode,
		VerificationURI: da.VerificationURI,
		QRURL:           QRURL(da.VerificationURI, da.UserCode),
		ExpiresAt:       da.Expiry,
		Interval:        time.Duration(da.Interval) * time.Second,
	}
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = t.now().Add(DefaultCodeLifetime)
	}
	if s.Interval <= 0 {
		s.Interval = DefaultPollInterval
	}
	log.Printf("auth: device code %s at %s (expires %s, interval %v)",
		s.UserCode, s.VerificationURI, s.ExpiresAt.Format(time.RFC3339), s.Interval)
	return s, nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error"`
}

// PollForToken makes a single token request for the session's device code.
func (t *Teams) PollForToken(ctx context.Context, s *Session) PollResult {
	form := url.Values{
		"grant_type":  {deviceCodeGrant},
		"client_id":   {t.cfg.ClientID},
		"device_code": {s.DeviceCode},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		log.Printf("auth: build token request: %v", err)
		return PollFatal
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		log.Printf("auth: token poll: %v", err)
		return PollFailure
	}
	defer resp.Body.Close()

	var tr tokenResponse
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(body, &tr); err != nil {
		log.Printf("auth: token poll HTTP %d: unreadable body", resp.StatusCode)
		return PollFailure
	}

	if resp.StatusCode == http.StatusOK {
		if tr.AccessToken == "" {
			log.Printf("auth: token response without access_token")
			return PollFailure
		}
		t.adopt(&oauth2.Token{
			AccessToken:  tr.AccessToken,
			RefreshToken: tr.RefreshToken,
			TokenType:    tr.TokenType,
			Expiry:       t.expiry(tr.ExpiresIn),
		})
		log.Printf("auth: token acquired")
		return PollSuccess
	}

	switch tr.Error {
	case "authorization_pending":
		return PollPending
	case "slow_down":
		s.Interval += DefaultPollInterval
		return PollPending
	case "expired_token", "access_denied", "bad_verification_code", "invalid_grant", "invalid_client":
		log.Printf("auth: device code rejected: %s", tr.Error)
		return PollFatal
	}
	log.Printf("auth: token poll HTTP %d (%s)", resp.StatusCode, tr.Error)
	return PollFailure
}

// Refresh exchanges the stored refresh token for a new access token. A
// refresh token the server rejects is discarded so the next boot starts a
// fresh sign-in.
func (t *Teams) Refresh(ctx context.Context) bool {
	rt := ""
	if t.token != nil {
		rt = t.token.RefreshToken
	}
	if rt == "" && t.store != nil {
		stored, err := t.store.RefreshToken()
		if err != nil {
			log.Printf("auth: load refresh token: %v", err)
		}
		rt = stored
	}
	if rt == "" {
		log.Printf("auth: no refresh token")
		return false
	}

	tok, err := t.cfg.TokenSource(withClient(ctx, t.client), &oauth2.Token{RefreshToken: rt}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && refreshRejected(re) {
			log.Printf("auth: refresh rejected (HTTP %d %s), clearing refresh token", re.Response.StatusCode, re.ErrorCode)
			t.token = nil
			if t.store != nil {
				if err := t.store.ClearRefreshToken(); err != nil {
					log.Printf("auth: clear refresh token: %v", err)
				}
			}
			return false
		}
		log.Printf("auth: refresh failed, keeping refresh token: %v", err)
		return false
	}
	t.adopt(tok)
	log.Printf("auth: token refreshed (expires %s)", tok.Expiry.Format(time.RFC3339))
	return true
}

// refreshRejected reports whether the server refused the refresh token
// itself. Throttling, server errors and anything else are retried later.
func refreshRejected(re *oauth2.RetrieveError) bool {
	if re.Response == nil {
		return false
	}
	switch re.Response.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized:
	default:
		return false
	}
	switch re.ErrorCode {
	case "invalid_grant", "invalid_client", "unauthorized_client":
		return true
	}
	return false
}

func (t *Teams) adopt(tok *oauth2.Token) {
	prev := ""
	if t.token != nil {
		prev = t.token.RefreshToken
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = prev
	}
	t.token = tok
	if t.store != nil && tok.RefreshToken != "" && tok.RefreshToken != prev {
		if err := t.store.SaveRefreshToken(tok.RefreshToken); err != nil {
			log.Printf("auth: save refresh token: %v", err)
		}
	}
}

func (t *Teams) expiry(expiresIn int64) time.Time {
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	return t.now().Add(time.Duration(expiresIn) * time.Second)
}
