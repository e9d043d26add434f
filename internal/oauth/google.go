package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"schoolbridge/portal/internal/auth"
)

const (
	DefaultJWKSURL   = "https://www.googleapis.com/oauth2/v3/certs"
	defaultRevokeURL = "https://oauth2.googleapis.com/revoke"
)

type callbackKey struct{}

// Callback is what the OAuth redirect handed back to the client.
type Callback struct {
	Code  string
	Error string
}

// WithCallback attaches the redirect parameters of the current request so the
// provider can finish the authorization-code exchange.
func WithCallback(ctx context.Context, cb Callback) context.Context {
	return context.WithValue(ctx, callbackKey{}, cb)
}

func callbackFromContext(ctx context.Context) (Callback, bool) {
	cb, ok := ctx.Value(callbackKey{}).(Callback)
	return cb, ok
}

type GoogleProvider struct {
	config    *oauth2.Config
	verifier  *Verifier
	client    *http.Client
	revokeURL string
}

var _ auth.OAuthProvider = (*GoogleProvider)(nil)

func NewGoogleProvider(clientID, clientSecret, redirectURL string, verifier *Verifier) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		verifier:  verifier,
		client:    http.DefaultClient,
		revokeURL: defaultRevokeURL,
	}
}

// AuthCodeURL is where the client sends the user to start sign-in.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *GoogleProvider) SignIn(ctx context.Context) (auth.OAuthResult, error) {
	cb, ok := callbackFromContext(ctx)
	if !ok {
		return auth.OAuthResult{}, errors.New("missing_oauth_callback")
	}
	switch strings.TrimSpace(cb.Error) {
	case "":
	case "access_denied", "user_cancelled":
		return auth.OAuthResult{}, auth.ErrOAuthCancelled
	default:
		return auth.OAuthResult{}, &auth.ServiceError{Code: cb.Error}
	}
	if strings.TrimSpace(cb.Code) == "" {
		return auth.OAuthResult{}, auth.ErrOAuthCancelled
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := p.config.Exchange(ctx, cb.Code)
	if err != nil {
		return auth.OAuthResult{}, fmt.Errorf("google code exchange: %w", err)
	}
	idToken, _ := token.Extra("id_token").(string)
	result, err := ResultFromIDToken(ctx, p.verifier, idToken, token.AccessToken)
	if err != nil {
		return auth.OAuthResult{}, fmt.Errorf("google id token: %w", err)
	}
	return result, nil
}

// SignOut revokes the Google access token. An empty token is a no-op.
func (p *GoogleProvider) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	form := url.Values{"token": {accessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("google revoke returned %d", resp.StatusCode)
	}
	return nil
}
