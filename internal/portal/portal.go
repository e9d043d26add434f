package portal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"schoolbridge/portal/internal/auth"
	"schoolbridge/portal/internal/kv"
	"schoolbridge/portal/internal/model"
	"schoolbridge/portal/internal/role"
	"schoolbridge/portal/internal/tenant"
)

const keyNavigationState = "@schoolbridge_navigation_state"

var ErrInvalidNavigationState = errors.New("invalid_navigation_state")

const (
	ScreenSetAuth          = "auth"
	ScreenSetRoleSelection = "role_selection"
	ScreenSetRoleError     = "role_error"
	ScreenSetDashboard     = "dashboard"
)

// Deps are the collaborators shared by every installation.
type Deps struct {
	Service auth.AuthService
	OAuth   auth.OAuthProvider
	Options auth.Options
}

// Portal is the session core of one installation: tenant, auth and the role
// view derived from both. Callers hold the lock through Registry.With.
type Portal struct {
	mu      sync.Mutex
	started bool
	store   kv.Store

	Tenant *tenant.Resolver
	Auth   *auth.Resolver
	Roles  *role.Resolver
}

func New(store kv.Store, deps Deps) *Portal {
	p := &Portal{
		store:  store,
		Tenant: tenant.NewResolver(store),
		Auth:   auth.NewResolver(store, deps.Service, deps.OAuth, deps.Options),
	}
	p.Roles = role.NewResolver(p.Auth, p.Tenant)
	return p
}

// Start loads the tenant and then restores the session.
func (p *Portal) Start(ctx context.Context) {
	p.Tenant.LoadStoredTenant(ctx)
	p.Auth.CheckAuthStatus(ctx)
	p.started = true
}

type Session struct {
	Authenticated      bool              `json:"authenticated"`
	NeedsRoleSelection bool              `json:"needsRoleSelection"`
	User               *model.User       `json:"user"`
	Role               model.Role        `json:"role,omitempty"`
	LoginMethod        model.LoginMethod `json:"loginMethod,omitempty"`
	AccessToken        string            `json:"accessToken,omitempty"`
}

func SessionOf(state auth.State) Session {
	return Session{
		Authenticated:      state.Authenticated,
		NeedsRoleSelection: state.NeedsRoleSelection(),
		User:               state.User,
		Role:               state.Role,
		LoginMethod:        state.LoginMethod,
		AccessToken:        state.AccessToken,
	}
}

// Access is everything the client needs to pick and render a screen set.
type Access struct {
	ScreenSet  string          `json:"screenSet"`
	Session    Session         `json:"session"`
	Assignment role.Assignment `json:"assignment"`
	RoleError  string          `json:"roleError,omitempty"`
	Tenant     tenant.Snapshot `json:"tenant"`
}

func (p *Portal) Access() Access {
	state := p.Auth.State()
	out := Access{
		Session: SessionOf(state),
		Tenant:  p.Tenant.Current(),
	}
	assignment, err := p.Roles.Current()
	out.Assignment = assignment

	switch {
	case state.NeedsRoleSelection():
		out.ScreenSet = ScreenSetRoleSelection
	case !state.Authenticated:
		out.ScreenSet = ScreenSetAuth
	case err != nil:
		out.ScreenSet = ScreenSetRoleError
		out.RoleError = err.Error()
	default:
		out.ScreenSet = ScreenSetDashboard
	}
	return out
}

// NavigationState returns the stored navigation blob, if any.
func (p *Portal) NavigationState(ctx context.Context) (json.RawMessage, bool, error) {
	raw, ok, err := kv.Lookup(ctx, p.store, keyNavigationState)
	if err != nil || !ok {
		return nil, false, err
	}
	if !json.Valid([]byte(raw)) {
		_ = p.store.Delete(ctx, keyNavigationState)
		return nil, false, nil
	}
	return json.RawMessage(raw), true, nil
}

func (p *Portal) SaveNavigationState(ctx context.Context, state json.RawMessage) error {
	if len(state) == 0 || !json.Valid(state) {
		return ErrInvalidNavigationState
	}
	return p.store.Set(ctx, keyNavigationState, string(state))
}
