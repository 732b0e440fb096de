package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/thefoeyouknow/Teams-Pod/internal/settings"
)

type memTokens struct {
	rt      string
	saves   int
	cleared bool
}

func (m *memTokens) RefreshToken() (string, error) { return m.rt, nil }
func (m *memTokens) SaveRefreshToken(t string) error {
	m.rt = t
	m.saves++
	return nil
}
func (m *memTokens) ClearRefreshToken() error {
	m.rt = ""
	m.cleared = true
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// identityServer scripts device-code poll replies in order; the last repeats.
func identityServer(t *testing.T, polls []func(http.ResponseWriter)) *httptest.Server {
	t.Helper()
	i := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/contoso/oauth2/v2.0/devicecode", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("client_id") != "app" {
			t.Errorf("devicecode client_id = %q", r.Form.Get("client_id"))
		}
		writeJSON(w, 200, map[string]any{
			"device_code":      "dc-1",
			"user_code":        "ABCD-EFGH",
			"verification_uri": "https://microsoft.com/devicelogin",
			"expires_in":       900,
			"interval":         5,
		})
	})
	mux.HandleFunc("/contoso/oauth2/v2.0/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		switch r.Form.Get("grant_type") {
		case deviceCodeGrant:
			if r.Form.Get("device_code") != "dc-1" {
				t.Errorf("device_code = %q", r.Form.Get("device_code"))
			}
			polls[i](w)
			if i < len(polls)-1 {
				i++
			}
		case "refresh_token":
			if r.Form.Get("refresh_token") != "good" {
				writeJSON(w, 400, map[string]string{"error": "invalid_grant"})
				return
			}
			writeJSON(w, 200, map[string]any{"access_token": "at-2", "refresh_token": "rt-2", "token_type": "Bearer", "expires_in": 3600})
		default:
			t.Errorf("unexpected grant %q", r.Form.Get("grant_type"))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func pending(w http.ResponseWriter) {
	writeJSON(w, 400, map[string]string{"error": "authorization_pending"})
}

func issued(w http.ResponseWriter) {
	writeJSON(w, 200, map[string]any{"access_token": "at-1", "refresh_token": "good", "token_type": "Bearer", "expires_in": 3600})
}

func TestQRURL(t *testing.T) {
	got := QRURL("https://microsoft.com/devicelogin", "AB-CD-EF")
	if got != "https://microsoft.com/devicelogin?otc=ABCDEF" {
		t.Errorf("got %q", got)
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s := &Session{ExpiresAt: now.Add(time.Second)}
	if s.Expired(now) {
		t.Error("not yet expired")
	}
	if !s.Expired(now.Add(time.Second)) {
		t.Error("expiry is inclusive")
	}
}

func TestTeamsDeviceCodeFlow(t *testing.T) {
	srv := identityServer(t, []func(http.ResponseWriter){pending, issued})
	store := &memTokens{}
	tm := NewTeamsWithAuthority(srv.URL, "app", "contoso", store, srv.Client())
	ctx := context.Background()

	s, err := tm.StartInteractiveAuth(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.UserCode != "ABCD-EFGH" || s.QRURL != "https://microsoft.com/devicelogin?otc=ABCDEFGH" {
		t.Errorf("session: %+v", s)
	}
	if s.Interval != 5*time.Second {
		t.Errorf("interval: %v", s.Interval)
	}
	if s.ExpiresAt.IsZero() {
		t.Error("expiry not set")
	}

	if r := tm.PollForToken(ctx, s); r != PollPending {
		t.Fatalf("first poll: %s", r)
	}
	if tm.HasValidToken() {
		t.Error("no token yet")
	}
	if r := tm.PollForToken(ctx, s); r != PollSuccess {
		t.Fatalf("second poll: %s", r)
	}
	if !tm.HasValidToken() || tm.AccessToken() != "at-1" {
		t.Errorf("token not adopted: %q", tm.AccessToken())
	}
	if tm.IsExpiringSoon() {
		t.Error("fresh 1h token is not expiring soon")
	}
	if store.rt != "good" {
		t.Errorf("refresh token not persisted: %q", store.rt)
	}
}

func TestTeamsPollClassification(t *testing.T) {
	tests := []struct {
		name  string
		reply func(http.ResponseWriter)
		want  PollResult
	}{
		{"slow down", func(w http.ResponseWriter) { writeJSON(w, 400, map[string]string{"error": "slow_down"}) }, PollPending},
		{"expired", func(w http.ResponseWriter) { writeJSON(w, 400, map[string]string{"error": "expired_token"}) }, PollFatal},
		{"declined", func(w http.ResponseWriter) { writeJSON(w, 400, map[string]string{"error": "access_denied"}) }, PollFatal},
		{"server error", func(w http.ResponseWriter) { writeJSON(w, 503, map[string]string{"error": "temporarily_unavailable"}) }, PollFailure},
		{"garbage", func(w http.ResponseWriter) { w.WriteHeader(502); w.Write([]byte("<html>")) }, PollFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := identityServer(t, []func(http.ResponseWriter){tt.reply})
			tm := NewTeamsWithAuthority(srv.URL, "app", "contoso", &memTokens{}, srv.Client())
			s := &Session{DeviceCode: "dc-1", Interval: DefaultPollInterval}
			if got := tm.PollForToken(context.Background(), s); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTeamsSlowDownBacksOff(t *testing.T) {
	srv := identityServer(t, []func(http.ResponseWriter){func(w http.ResponseWriter) {
		writeJSON(w, 400, map[string]string{"error": "slow_down"})
	}})
	tm := NewTeamsWithAuthority(srv.URL, "app", "contoso", nil, srv.Client())
	s := &Session{DeviceCode: "dc-1", Interval: 5 * time.Second}
	tm.PollForToken(context.Background(), s)
	if s.Interval != 10*time.Second {
		t.Errorf("interval: got %v, want 10s", s.Interval)
	}
}

func TestTeamsRefreshFromStore(t *testing.T) {
	srv := identityServer(t, []func(http.ResponseWriter){pending})
	store := &memTokens{rt: "good"}
	tm := NewTeamsWithAuthority(srv.URL, "app", "contoso", store, srv.Client())

	if !tm.Refresh(context.Background()) {
		t.Fatal("refresh failed")
	}
	if tm.AccessToken() != "at-2" {
		t.Errorf("access token: %q", tm.AccessToken())
	}
	if store.rt != "rt-2" {
		t.Errorf("rotated refresh token not persisted: %q", store.rt)
	}
}

func TestTeamsRefreshRejectedClearsToken(t *testing.T) {
	srv := identityServer(t, []func(http.ResponseWriter){pending})
	store := &memTokens{rt: "revoked"}
	tm := NewTeamsWithAuthority(srv.URL, "app", "contoso", store, srv.Client())

	if tm.Refresh(context.Background()) {
		t.Fatal("refresh should fail")
	}
	if !store.cleared || store.rt != "" {
		t.Errorf("rejected refresh token not cleared: %+v", store)
	}
	if tm.HasValidToken() {
		t.Error("no valid token expected")
	}
}

func TestTeamsRefreshTransientKeepsToken(t *testing.T) {
	tests := []struct {
		name string
		code int
		body map[string]string
	}{
		{"unavailable", http.StatusServiceUnavailable, map[string]string{"error": "temporarily_unavailable"}},
		{"throttled", http.StatusTooManyRequests, map[string]string{"error": "slow_down"}},
		{"server error", http.StatusInternalServerError, nil},
		{"bad request without grant error", http.StatusBadRequest, map[string]string{"error": "invalid_request"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				r.ParseForm()
				if r.Form.Get("grant_type") == deviceCodeGrant {
					issued(w)
					return
				}
				writeJSON(w, tt.code, tt.body)
			}))
			defer srv.Close()
			store := &memTokens{}
			tm := NewTeamsWithAuthority(srv.URL, "app", "contoso", store, srv.Client())
			tm.cfg.Endpoint.TokenURL = srv.URL

			if got := tm.PollForToken(context.Background(), &Session{DeviceCode: "dc-1"}); got != PollSuccess {
				t.Fatalf("poll: got %s", got)
			}
			if tm.Refresh(context.Background()) {
				t.Fatal("refresh should fail")
			}
			if store.cleared || store.rt != "good" {
				t.Errorf("refresh token lost on transient failure: %+v", store)
			}
			if !tm.HasValidToken() || tm.AccessToken() != "at-1" {
				t.Error("current access token should survive a transient failure")
			}
		})
	}
}

func TestTeamsRefreshUnreachableKeepsStoredToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	store := &memTokens{rt: "good"}
	tm := NewTeamsWithAuthority(url, "app", "contoso", store, nil)
	if tm.Refresh(context.Background()) {
		t.Fatal("refresh against a closed server should fail")
	}
	if store.cleared || store.rt != "good" {
		t.Errorf("refresh token lost on transport error: %+v", store)
	}
}

func TestTeamsRefreshWithoutToken(t *testing.T) {
	tm := NewTeamsWithAuthority("http://127.0.0.1:1", "app", "contoso", &memTokens{}, nil)
	if tm.Refresh(context.Background()) {
		t.Error("refresh without a token must fail")
	}
}

func TestExpiringSoon(t *testing.T) {
	srv := identityServer(t, []func(http.ResponseWriter){issued})
	tm := NewTeamsWithAuthority(srv.URL, "app", "contoso", nil, srv.Client())
	tm.PollForToken(context.Background(), &Session{DeviceCode: "dc-1"})

	base := time.Now()
	tm.now = func() time.Time { return base.Add(56 * time.Minute) }
	if !tm.IsExpiringSoon() {
		t.Error("token with <5 min left should be expiring soon")
	}
	if !tm.HasValidToken() {
		t.Error("token is still valid")
	}
	tm.now = func() time.Time { return base.Add(2 * time.Hour) }
	if tm.HasValidToken() {
		t.Error("token past expiry must not be valid")
	}
}

func TestZoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "cid" || pass != "secret" {
			writeJSON(w, 401, map[string]string{"error": "invalid_client"})
			return
		}
		r.ParseForm()
		if r.Form.Get("grant_type") != "account_credentials" || r.Form.Get("account_id") != "acct" {
			t.Errorf("form: %v", r.Form)
		}
		writeJSON(w, 200, map[string]any{"access_token": "zoom-at", "token_type": "bearer", "expires_in": 3600})
	}))
	defer srv.Close()

	z := NewZoomWithTokenURL(srv.URL, "acct", "cid", "secret", srv.Client())
	if _, err := z.StartInteractiveAuth(context.Background()); err != ErrNotInteractive {
		t.Errorf("got %v, want ErrNotInteractive", err)
	}
	if !z.Refresh(context.Background()) {
		t.Fatal("refresh failed")
	}
	if z.AccessToken() != "zoom-at" || !z.HasValidToken() {
		t.Errorf("token: %q", z.AccessToken())
	}

	bad := NewZoomWithTokenURL(srv.URL, "acct", "cid", "wrong", srv.Client())
	if bad.Refresh(context.Background()) {
		t.Error("bad secret should fail")
	}
}

func TestNewSelectsPlatform(t *testing.T) {
	if _, ok := New(settings.Credentials{Platform: settings.PlatformZoom}, nil, nil).(*Zoom); !ok {
		t.Error("zoom credentials should yield a Zoom provider")
	}
	if _, ok := New(settings.Credentials{}, nil, nil).(*Teams); !ok {
		t.Error("default platform should yield a Teams provider")
	}
}
