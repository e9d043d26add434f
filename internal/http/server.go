package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schoolbridge/portal/internal/auth"
	"schoolbridge/portal/internal/config"
	"schoolbridge/portal/internal/model"
	"schoolbridge/portal/internal/oauth"
	"schoolbridge/portal/internal/portal"
	"schoolbridge/portal/internal/result"
	"schoolbridge/portal/internal/role"
	"schoolbridge/portal/internal/tenant"
)

const (
	installationHeader          = "X-Installation-ID"
	defaultNavigationStateLimit = 1 << 20
)

type installationKey struct{}

type Server struct {
	cfg      config.Config
	registry *portal.Registry
	google   *oauth.GoogleProvider
	verifier *oauth.Verifier
}

// NewServer builds the HTTP surface. google and verifier may be nil when
// Google sign-in is not configured.
func NewServer(cfg config.Config, registry *portal.Registry, google *oauth.GoogleProvider, verifier *oauth.Verifier) *Server {
	return &Server{cfg: cfg, registry: registry, google: google, verifier: verifier}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/roles", s.handleRoles)
	r.Get("/auth/google/url", s.handleGoogleURL)

	r.Group(func(r chi.Router) {
		r.Use(s.installationMiddleware)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/check", s.handleCheck)
			r.Get("/session", s.handleSession)
			r.Post("/login", s.handleLogin)
			r.Post("/signup", s.handleSignup)
			r.Post("/google", s.handleGoogle)
			r.Post("/oauth/complete", s.handleCompleteOAuth)
			r.Post("/logout", s.handleLogout)
			r.Post("/clear", s.handleClear)
		})

		r.Route("/access", func(r chi.Router) {
			r.Get("/", s.handleAccess)
			r.Get("/permissions/{permission}", s.handlePermission)
			r.Get("/features/{feature}", s.handleFeatureAccess)
			r.Get("/screens/{screen}", s.handleScreen)
		})

		r.Route("/tenant", func(r chi.Router) {
			r.Get("/", s.handleGetTenant)
			r.Post("/load", s.handleLoadTenant)
			r.Put("/", s.handleSwitchTenant)
			r.Delete("/", s.handleClearTenant)
			r.Get("/features/{feature}", s.handleTenantFeature)
			r.Get("/endpoint", s.handleTenantEndpoint)
		})

		r.Get("/navigation-state", s.handleGetNavigationState)
		r.Put("/navigation-state", s.handlePutNavigationState)
	})

	return r
}

func (s *Server) handleRoles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"roles": role.AvailableRoles()})
}

func (s *Server) handleGoogleURL(w http.ResponseWriter, _ *http.Request) {
	if s.google == nil {
		writeError(w, http.StatusServiceUnavailable, "oauth_not_configured")
		return
	}
	state := uuid.NewString()
	writeJSON(w, http.StatusOK, map[string]string{"url": s.google.AuthCodeURL(state), "state": state})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	s.withPortal(w, r, func(p *portal.Portal) error {
		writeJSON(w, http.StatusOK, portal.SessionOf(p.Auth.CheckAuthStatus(r.Context())))
		return nil
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.withPortal(w, r, func(p *portal.Portal) error {
		writeJSON(w, http.StatusOK, portal.SessionOf(p.Auth.State()))
		return nil
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	s.withPortal(w, r, func(p *portal.Portal) error {
		res := p.Auth.Login(r.Context(), req.Email, req.Password, model.Role(req.Role))
		if !res.OK() {
			writeFailure(w, res.Kind, res.Message)
			return nil
		}
		writeJSON(w, http.StatusOK, portal.SessionOf(res.Value))
		return nil
	})
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	s.withPortal(w, r, func(p *portal.Portal) error {
		res := p.Auth.Signup(r.Context(), req)
		if !res.OK() {
			writeFailure(w, res.Kind, res.Message)
			return nil
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"user": res.Value})
		return nil
	})
}

type googleRequest struct {
	Code        string `json:"code"`
	Error       string `json:"error"`
	IDToken     string `json:"idToken"`
	AccessToken string `json:"accessToken"`
}

// handleGoogle accepts either the redirect parameters of the authorization
// code flow or an ID token the client already obtained.
func (s *Server) handleGoogle(w http.ResponseWriter, r *http.Request) {
	var req googleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	var pre *auth.OAuthResult
	if req.IDToken != "" {
		if s.verifier == nil {
			writeError(w, http.StatusServiceUnavailable, "oauth_not_configured")
			return
		}
		obtained, err := oauth.ResultFromIDToken(r.Context(), s.verifier, req.IDToken, req.AccessToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_id_token")
			return
		}
		pre = &obtained
	}

	ctx := oauth.WithCallback(r.Context(), oauth.Callback{Code: req.Code, Error: req.Error})
	s.withPortal(w, r, func(p *portal.Portal) error {
		res := p.Auth.SignInWithGoogle(ctx, pre)
		switch {
		case res.Cancelled():
			writeJSON(w, http.StatusOK, map[string]interface{}{"cancelled": true, "message": res.Message})
		case !res.OK():
			writeFailure(w, res.Kind, res.Message)
		default:
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"user":               res.Value.User,
				"needsRoleSelection": res.Value.NeedsRoleSelection,
			})
		}
		return nil
	})
}

type completeOAuthRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleCompleteOAuth(w http.ResponseWriter, r *http.Request) {
	var req completeOAuthRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	s.withPortal(w, r, func(p *portal.Portal) error {
		state, err := p.Auth.CompleteOAuthSetup(r.Context(), model.Role(req.Role))
		switch {
		case errors.Is(err, auth.ErrNoPendingIdentity):
			writeError(w, http.StatusConflict, "no_pending_identity")
		case errors.Is(err, auth.ErrInvalidRole):
			writeError(w, http.StatusBadRequest, "invalid_role")
		case err != nil:
			return err
		default:
			writeJSON(w, http.StatusOK, portal.SessionOf(state))
		}
		return nil
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.withPortal(w, r, func(p *portal.Portal) error {
		p.Auth.Logout(r.Context())
		writeJSON(w, http.StatusOK, portal.SessionOf(p.Auth.State()))
		return nil
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.withPortal(w, r, func(p *portal.Portal) error {
		p.Auth.ClearAuthData(r.Context())
		writeJSON(w, http.StatusOK, portal.SessionOf(p.Auth.State()))
		return nil
	})
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	s.withPortal(w, r, func(p *portal.Portal) error {
		writeJSON(w, http.StatusOK, p.Access())
		return nil
	})
}

func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request) {
	permission := chi.URLParam(r, "permission")
	s.withPortal(w, r, func(p *portal.Portal) error {
		writeJSON(w, http.StatusOK, map[string]interface{}{"permission": permission, "allowed": p.Roles.HasPermission(permission)})
		return nil
	})
}

func (s *Server) handleFeatureAccess(w http.ResponseWriter, r *http.Request) {
	feature := chi.URLParam(r, "feature")
	s.withPortal(w, r, func(p *portal.Portal) error {
		writeJSON(w, http.StatusOK, map[string]interface{}{"feature": feature, "allowed": p.Roles.HasFeatureAccess(feature)})
		return nil
	})
}

func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	screen := chi.URLParam(r, "screen")
	s.withPortal(w, r, func(p *portal.Portal) error {
		writeJSON(w, http.StatusOK, map[string]interface{}{"screen": screen, "allowed": p.Roles.CanAccessScreen(screen)})
		return nil
	})
}

func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	s.withPortal(w, r, func(p *portal.Portal) error {
		writeJSON(w, http.StatusOK, p.Tenant.Current())
		return nil
	})
}

// handleLoadTenant always answers with a usable tenant. A storage problem is
// reported next to it as a warning.
func (s *Server) handleLoadTenant(w http.ResponseWriter, r *http.Request) {
	s.withPortal(w, r, func(p *portal.Portal) error {
		res := p.Tenant.LoadStoredTenant(r.Context())
		body := map[string]interface{}{"tenant": res.Value}
		if !res.OK() {
			body["warning"] = res.Message
		}
		writeJSON(w, http.StatusOK, body)
		return nil
	})
}

type switchTenantRequest struct {
	ID     string        `json:"id"`
	Config tenant.Config `json:"config"`
}

func (s *Server) handleSwitchTenant(w http.ResponseWriter, r *http.Request) {
	var req switchTenantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	s.withPortal(w, r, func(p *portal.Portal) error {
		res := p.Tenant.SwitchTenant(r.Context(), req.ID, req.Config)
		if !res.OK() {
			writeFailure(w, res.Kind, res.Message)
			return nil
		}
		writeJSON(w, http.StatusOK, res.Value)
		return nil
	})
}

func (s *Server) handleClearTenant(w http.ResponseWriter, r *http.Request) {
	s.withPortal(w, r, func(p *portal.Portal) error {
		if err := p.Tenant.ClearTenantData(r.Context()); err != nil {
			return err
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

func (s *Server) handleTenantFeature(w http.ResponseWriter, r *http.Request) {
	feature := chi.URLParam(r, "feature")
	s.withPortal(w, r, func(p *portal.Portal) error {
		writeJSON(w, http.StatusOK, map[string]interface{}{"feature": feature, "enabled": p.Tenant.IsFeatureEnabled(feature)})
		return nil
	})
}

func (s *Server) handleTenantEndpoint(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		writeError(w, http.StatusBadRequest, "missing_path")
		return
	}
	s.withPortal(w, r, func(p *portal.Portal) error {
		writeJSON(w, http.StatusOK, map[string]string{"endpoint": p.Tenant.APIEndpoint(path)})
		return nil
	})
}

func (s *Server) handleGetNavigationState(w http.ResponseWriter, r *http.Request) {
	s.withPortal(w, r, func(p *portal.Portal) error {
		state, ok, err := p.NavigationState(r.Context())
		if err != nil {
			return err
		}
		if !ok {
			writeError(w, http.StatusNotFound, "not_found")
			return nil
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(state)
		return nil
	})
}

func (s *Server) handlePutNavigationState(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.NavigationStateMax
	if limit <= 0 {
		limit = defaultNavigationStateLimit
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(limit)+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if len(body) > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "navigation_state_too_large")
		return
	}

	s.withPortal(w, r, func(p *portal.Portal) error {
		err := p.SaveNavigationState(r.Context(), body)
		if errors.Is(err, portal.ErrInvalidNavigationState) {
			writeError(w, http.StatusBadRequest, "invalid_navigation_state")
			return nil
		}
		if err != nil {
			return err
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

func (s *Server) installationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(installationHeader))
		if raw == "" {
			writeError(w, http.StatusBadRequest, "missing_installation_id")
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_installation_id")
			return
		}
		ctx := context.WithValue(r.Context(), installationKey{}, id.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func installationFromContext(ctx context.Context) string {
	id, _ := ctx.Value(installationKey{}).(string)
	return id
}

func (s *Server) withPortal(w http.ResponseWriter, r *http.Request, fn func(*portal.Portal) error) {
	id := installationFromContext(r.Context())
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_installation_id")
		return
	}
	if err := s.registry.With(r.Context(), id, fn); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

func writeFailure(w http.ResponseWriter, kind result.Kind, message string) {
	status := http.StatusInternalServerError
	switch kind {
	case result.KindInvalidInput:
		status = http.StatusBadRequest
	case result.KindInvalidCredentials:
		status = http.StatusUnauthorized
	case result.KindNetwork, result.KindOAuth:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": string(kind), "message": message})
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
