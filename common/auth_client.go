package common

import "golang.org/x/oauth2"

// TokenSource supplies bearer tokens for API deployments that sit behind an
// OAuth2 gateway instead of (or in addition to) cookie sessions. A nil
// TokenSource means requests carry only cookies.
type TokenSource = oauth2.TokenSource

// StaticTokenSource returns a TokenSource for a fixed access token, or nil
// when accessToken is empty.
func StaticTokenSource(accessToken string) TokenSource {
	if accessToken == "" {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})
}
