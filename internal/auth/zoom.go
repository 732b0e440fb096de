package auth

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultZoomTokenURL is the Zoom OAuth token endpoint.
const DefaultZoomTokenURL = "https://zoom.us/oauth/token"

// Zoom fetches server-to-server tokens with the account credentials grant.
// There is no refresh token; Refresh simply requests a new access token.
type Zoom struct {
	tokenState
	cfg    clientcredentials.Config
	client *http.Client
}

// NewZoom returns a Zoom provider for the given account and app.
func NewZoom(accountID, clientID, clientSecret string, client *http.Client) *Zoom {
	return NewZoomWithTokenURL(DefaultZoomTokenURL, accountID, clientID, clientSecret, client)
}

// NewZoomWithTokenURL is NewZoom against a non-default token endpoint.
func NewZoomWithTokenURL(tokenURL, accountID, clientID, clientSecret string, client *http.Client) *Zoom {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Zoom{
		tokenState: tokenState{now: time.Now},
		cfg: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			EndpointParams: url.Values{
				"grant_type": {"account_credentials"},
				"account_id": {accountID},
			},
			AuthStyle: oauth2.AuthStyleInHeader,
		},
		client: client,
	}
}

// StartInteractiveAuth is not supported; Zoom authenticates without a user.
func (z *Zoom) StartInteractiveAuth(ctx context.Context) (*Session, error) {
	return nil, ErrNotInteractive
}

// PollForToken is never valid for Zoom.
func (z *Zoom) PollForToken(ctx context.Context, s *Session) PollResult {
	return PollFatal
}

// Refresh requests a new access token.
func (z *Zoom) Refresh(ctx context.Context) bool {
	tok, err := z.cfg.Token(withClient(ctx, z.client))
	if err != nil {
		log.Printf("auth: zoom token request failed: %v", err)
		return false
	}
	z.token = tok
	log.Printf("auth: zoom token acquired (expires %s)", tok.Expiry.Format(time.RFC3339))
	return true
}
