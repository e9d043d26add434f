package auth

import (
	"context"
	"errors"
	"strings"

	"schoolbridge/portal/internal/model"
	"schoolbridge/portal/internal/result"
)

type Credentials struct {
	Email    string
	Password string
	Role     model.Role
}

type LoginResponse struct {
	Success      bool
	User         *model.User
	AccessToken  string
	RefreshToken string
	Message      string
	Error        string
}

// RegisterResponse mirrors the backend envelope. Success is nil when the
// backend did not send the field at all.
type RegisterResponse struct {
	Success *bool
	User    *model.User
	Message string
}

// AuthService is the remote authentication backend.
type AuthService interface {
	Login(ctx context.Context, creds Credentials) (LoginResponse, error)
	Register(ctx context.Context, userData map[string]interface{}) (RegisterResponse, error)
	Logout(ctx context.Context, refreshToken string) error
}

// OAuthResult is what a completed third-party sign-in yields.
type OAuthResult struct {
	User        model.User
	IDToken     string
	AccessToken string
}

// OAuthProvider signs users in with a third-party identity provider.
// SignIn returns ErrOAuthCancelled when the user backed out.
type OAuthProvider interface {
	SignIn(ctx context.Context) (OAuthResult, error)
	SignOut(ctx context.Context, accessToken string) error
}

var ErrOAuthCancelled = errors.New("oauth_cancelled")

// ServiceError is returned by AuthService implementations when the backend
// answered with a structured error.
type ServiceError struct {
	Kind    result.Kind
	Message string
	Code    string
	Err     error
}

func (e *ServiceError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Code != "":
		return e.Code
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "auth service error"
	}
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// failureMessage picks the most specific human-readable text for err: the
// backend's message, then its error code, then the error text itself.
func failureMessage(err error, fallback string) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		if msg := strings.TrimSpace(serviceErr.Message); msg != "" {
			return msg
		}
		if code := strings.TrimSpace(serviceErr.Code); code != "" {
			return code
		}
	}
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			return msg
		}
	}
	return fallback
}

func failureKind(err error, fallback result.Kind) result.Kind {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) && serviceErr.Kind != result.KindNone {
		return serviceErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return result.KindNetwork
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
