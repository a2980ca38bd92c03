package zoho

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

// OAuthRefresher runs the refresh-token grant against the Zoho accounts server.
type OAuthRefresher struct {
	config       *oauth2.Config
	refreshToken string
	http         *http.Client
}

// NewOAuthRefresher builds a refresher. Zoho expects the client credentials
// as form parameters, not basic auth.
func NewOAuthRefresher(clientID, clientSecret, refreshToken, tokenURL string, httpClient *http.Client) *OAuthRefresher {
	return &OAuthRefresher{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		refreshToken: refreshToken,
		http:         httpClient,
	}
}

// Refresh exchanges the refresh token for a new access token.
func (r *OAuthRefresher) Refresh(ctx context.Context) (*oauth2.Token, error) {
	if r.http != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.http)
	}
	return r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: r.refreshToken}).Token()
}
