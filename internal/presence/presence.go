// Package presence fetches the signed-in user's availability from the
// platform API and normalises it to Microsoft Graph availability names.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/thefoeyouknow/Teams-Pod/internal/settings"
)

// Availability values, as reported by Microsoft Graph.
const (
	Available    = "Available"
	Busy         = "Busy"
	DoNotDisturb = "DoNotDisturb"
	Away         = "Away"
	BeRightBack  = "BeRightBack"
	Offline      = "Offline"
	Unknown      = "PresenceUnknown"
)

// ErrUnauthorized is returned when the API rejects the access token.
var ErrUnauthorized = errors.New("presence: access token rejected")

// State is one presence snapshot.
type State struct {
	Availability string
	Activity     string
}

func (s State) String() string {
	if s.Activity == "" || s.Activity == s.Availability {
		return s.Availability
	}
	return s.Availability + " (" + s.Activity + ")"
}

// Provider fetches presence with a bearer token.
type Provider interface {
	Fetch(ctx context.Context, token string) (State, error)
}

// New returns the presence provider for a platform.
func New(p settings.Platform, client *http.Client) Provider {
	if p == settings.PlatformZoom {
		return NewZoom(client)
	}
	return NewGraph(client)
}

// Label returns the display text for an availability value.
func Label(availability string) string {
	switch availability {
	case Available:
		return "Available"
	case Busy:
		return "Busy"
	case DoNotDisturb:
		return "Do Not Disturb"
	case Away:
		return "Away"
	case BeRightBack:
		return "Be Right Back"
	case Offline:
		return "Offline"
	}
	return "Unknown"
}

func defaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// getJSON performs an authorised GET and decodes a 200 body into v.
func getJSON(ctx context.Context, client *http.Client, url, token string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("get presence: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("get presence: HTTP %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode presence: %w", err)
	}
	return nil
}
