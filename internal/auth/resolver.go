package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"schoolbridge/portal/internal/kv"
	"schoolbridge/portal/internal/metrics"
	"schoolbridge/portal/internal/model"
	"schoolbridge/portal/internal/result"
)

const (
	keyAccessToken  = "@schoolbridge_access_token"
	keyRefreshToken = "@schoolbridge_refresh_token"
	keyUserData     = "@schoolbridge_user_data"
	keyUserRole     = "@schoolbridge_user_role"
	keyLoginMethod  = "@schoolbridge_login_method"
	keyOAuthToken   = "@schoolbridge_google_token"
)

var authKeys = []string{
	keyAccessToken,
	keyRefreshToken,
	keyUserData,
	keyUserRole,
	keyLoginMethod,
	keyOAuthToken,
}

var (
	ErrNoPendingIdentity = errors.New("no_pending_identity")
	ErrInvalidRole       = errors.New("invalid_role")
)

// State is the in-memory session. User may be set while Authenticated is
// false: that is a Google sign-in waiting for role selection.
type State struct {
	User          *model.User
	AccessToken   string
	RefreshToken  string
	LoginMethod   model.LoginMethod
	Role          model.Role
	Authenticated bool
}

// NeedsRoleSelection reports a pending OAuth session.
func (s State) NeedsRoleSelection() bool {
	return !s.Authenticated && s.User != nil && s.LoginMethod == model.LoginMethodGoogle
}

type GoogleSignIn struct {
	User               model.User
	NeedsRoleSelection bool
}

type Options struct {
	ServiceTimeout time.Duration
	OAuthTimeout   time.Duration
}

// Resolver owns the authentication session of one installation. Calls are not
// synchronized; the owner serializes mutating operations.
type Resolver struct {
	store   kv.Store
	service AuthService
	oauth   OAuthProvider
	opts    Options
	state   State
}

func NewResolver(store kv.Store, service AuthService, oauth OAuthProvider, opts Options) *Resolver {
	return &Resolver{store: store, service: service, oauth: oauth, opts: opts}
}

func (r *Resolver) State() State {
	state := r.state
	if state.User != nil {
		user := *state.User
		state.User = &user
	}
	return state
}

// CurrentRole is the role of an authenticated session, or "" otherwise.
func (r *Resolver) CurrentRole() model.Role {
	if !r.state.Authenticated {
		return ""
	}
	return r.state.Role
}

type persistedAuth struct {
	accessToken  string
	refreshToken string
	userData     string
	hasUserData  bool
	role         string
	method       string
	oauthToken   string
}

func (p persistedAuth) hasOrphans() bool {
	return p.accessToken != "" || p.refreshToken != "" || p.role != "" || p.method != "" || p.oauthToken != ""
}

func (r *Resolver) readPersisted(ctx context.Context) (persistedAuth, error) {
	var p persistedAuth
	var err error
	read := func(key string, dst *string) bool {
		if err != nil {
			return false
		}
		var ok bool
		*dst, ok, err = kv.Lookup(ctx, r.store, key)
		return ok
	}
	read(keyAccessToken, &p.accessToken)
	read(keyRefreshToken, &p.refreshToken)
	p.hasUserData = read(keyUserData, &p.userData)
	read(keyUserRole, &p.role)
	read(keyLoginMethod, &p.method)
	read(keyOAuthToken, &p.oauthToken)
	return p, err
}

// CheckAuthStatus rebuilds the in-memory session from storage and repairs
// inconsistent persisted state. It never fails; problems end in a signed-out
// session.
func (r *Resolver) CheckAuthStatus(ctx context.Context) State {
	p, err := r.readPersisted(ctx)
	if err != nil {
		log.Printf("auth status read failed: %v", err)
		r.state = State{}
		return r.State()
	}

	var user *model.User
	if p.hasUserData {
		var parsed model.User
		if err := json.Unmarshal([]byte(p.userData), &parsed); err != nil {
			log.Printf("auth status user data unreadable: %v", err)
		} else {
			user = &parsed
		}
	}

	if user == nil {
		if p.hasUserData || p.hasOrphans() {
			r.selfHeal(ctx, "orphaned_keys", authKeys...)
		}
		r.state = State{}
		return r.State()
	}

	method, known := model.ParseLoginMethod(p.method)
	if !known {
		r.selfHeal(ctx, "unknown_login_method", authKeys...)
		r.state = State{}
		return r.State()
	}

	persistedRole, _ := model.ParseRole(p.role)
	userRole, _ := model.ParseRole(user.Role)
	consistent := persistedRole != "" && persistedRole == userRole

	next := State{
		User:         user,
		AccessToken:  p.accessToken,
		RefreshToken: p.refreshToken,
		LoginMethod:  method,
	}
	switch method {
	case model.LoginMethodGoogle:
		if consistent {
			next.Role = persistedRole
			next.Authenticated = true
		}
	case model.LoginMethodEmail:
		if !consistent {
			r.selfHeal(ctx, "email_role_mismatch", authKeys...)
			r.state = State{}
			return r.State()
		}
		next.Role = persistedRole
		next.Authenticated = true
	}

	r.state = next
	return r.State()
}

func (r *Resolver) selfHeal(ctx context.Context, reason string, keys ...string) {
	metrics.SelfHeals.WithLabelValues(reason).Inc()
	log.Printf("auth status clearing persisted keys: %s", reason)
	if err := r.store.Delete(ctx, keys...); err != nil {
		log.Printf("auth status clear failed: %v", err)
	}
}

func (r *Resolver) Login(ctx context.Context, email, password string, role model.Role) result.Result[State] {
	res := r.login(ctx, email, password, role)
	metrics.AuthEvents.WithLabelValues("login", metrics.Outcome(res.OK())).Inc()
	return res
}

func (r *Resolver) login(ctx context.Context, email, password string, role model.Role) result.Result[State] {
	if firstNonEmpty(email) == "" || password == "" {
		return result.Fail[State](result.KindInvalidInput, "Email and password are required")
	}
	if r.service == nil {
		return result.Fail[State](result.KindNetwork, "Authentication service is not configured")
	}

	callCtx, cancel := r.withTimeout(ctx, r.opts.ServiceTimeout)
	resp, err := r.service.Login(callCtx, Credentials{Email: email, Password: password, Role: role})
	cancel()
	if err != nil {
		return result.Fail[State](failureKind(err, result.KindNetwork), failureMessage(err, "Login failed"))
	}
	if !resp.Success {
		return result.Fail[State](result.KindInvalidCredentials, firstNonEmpty(resp.Message, resp.Error, "Login failed"))
	}
	if resp.User == nil {
		return result.Fail[State](result.KindInternal, "Login response did not include a user")
	}

	user := *resp.User
	effective, ok := model.ParseRole(user.Role)
	if !ok {
		effective, ok = model.ParseRole(string(role))
	}
	if !ok {
		return result.Fail[State](result.KindInvalidInput, "A valid role is required")
	}
	user = user.WithRole(effective)

	data, err := json.Marshal(user)
	if err != nil {
		return result.Fail[State](result.KindInternal, err.Error())
	}
	writes := [][2]string{
		{keyUserData, string(data)},
		{keyUserRole, string(effective)},
		{keyLoginMethod, string(model.LoginMethodEmail)},
		{keyAccessToken, resp.AccessToken},
		{keyRefreshToken, resp.RefreshToken},
	}
	if err := r.persist(ctx, writes); err != nil {
		r.wipe(ctx)
		return result.Fail[State](result.KindStorage, "Could not save session")
	}

	r.state = State{
		User:          &user,
		AccessToken:   resp.AccessToken,
		RefreshToken:  resp.RefreshToken,
		LoginMethod:   model.LoginMethodEmail,
		Role:          effective,
		Authenticated: true,
	}
	return result.Ok(r.State())
}

// Signup registers a new account. It does not sign the user in.
func (r *Resolver) Signup(ctx context.Context, userData map[string]interface{}) result.Result[*model.User] {
	res := r.signup(ctx, userData)
	metrics.AuthEvents.WithLabelValues("signup", metrics.Outcome(res.OK())).Inc()
	return res
}

func (r *Resolver) signup(ctx context.Context, userData map[string]interface{}) result.Result[*model.User] {
	if len(userData) == 0 {
		return result.Fail[*model.User](result.KindInvalidInput, "Registration details are required")
	}
	if r.service == nil {
		return result.Fail[*model.User](result.KindNetwork, "Authentication service is not configured")
	}

	callCtx, cancel := r.withTimeout(ctx, r.opts.ServiceTimeout)
	resp, err := r.service.Register(callCtx, userData)
	cancel()
	if err != nil {
		return result.Fail[*model.User](failureKind(err, result.KindNetwork), failureMessage(err, "Registration failed. Please try again."))
	}
	if resp.Success != nil && !*resp.Success {
		return result.Fail[*model.User](result.KindInvalidInput, firstNonEmpty(resp.Message, "Registration failed. Please try again."))
	}
	return result.Ok(resp.User)
}

// SignInWithGoogle stores the OAuth identity without a role. pre may carry a
// result obtained by the client; otherwise the configured provider is asked.
func (r *Resolver) SignInWithGoogle(ctx context.Context, pre *OAuthResult) result.Result[GoogleSignIn] {
	res := r.signInWithGoogle(ctx, pre)
	outcome := metrics.Outcome(res.OK())
	if res.Cancelled() {
		outcome = "cancelled"
	}
	metrics.AuthEvents.WithLabelValues("google_sign_in", outcome).Inc()
	return res
}

func (r *Resolver) signInWithGoogle(ctx context.Context, pre *OAuthResult) result.Result[GoogleSignIn] {
	var oauthResult OAuthResult
	if pre != nil {
		oauthResult = *pre
	} else {
		if r.oauth == nil {
			return result.Fail[GoogleSignIn](result.KindOAuth, "Google sign-in is not configured")
		}
		callCtx, cancel := r.withTimeout(ctx, r.opts.OAuthTimeout)
		signed, err := r.oauth.SignIn(callCtx)
		cancel()
		if errors.Is(err, ErrOAuthCancelled) {
			return result.Fail[GoogleSignIn](result.KindCancelled, "Sign-in was cancelled")
		}
		if err != nil {
			return result.Fail[GoogleSignIn](failureKind(err, result.KindOAuth), failureMessage(err, "Google sign-in failed"))
		}
		oauthResult = signed
	}
	if oauthResult.User.ID == "" && oauthResult.User.Email == "" {
		return result.Fail[GoogleSignIn](result.KindOAuth, "Google sign-in returned no identity")
	}

	user := oauthResult.User.WithRole("")
	data, err := json.Marshal(user)
	if err != nil {
		return result.Fail[GoogleSignIn](result.KindInternal, err.Error())
	}
	if err := r.store.Delete(ctx, keyUserRole, keyAccessToken, keyRefreshToken); err != nil {
		return result.Fail[GoogleSignIn](result.KindStorage, "Could not save session")
	}
	writes := [][2]string{
		{keyUserData, string(data)},
		{keyLoginMethod, string(model.LoginMethodGoogle)},
		{keyOAuthToken, oauthResult.AccessToken},
	}
	if err := r.persist(ctx, writes); err != nil {
		r.wipe(ctx)
		return result.Fail[GoogleSignIn](result.KindStorage, "Could not save session")
	}

	r.state = State{
		User:        &user,
		LoginMethod: model.LoginMethodGoogle,
	}
	return result.Ok(GoogleSignIn{User: user, NeedsRoleSelection: true})
}

// CompleteOAuthSetup attaches the chosen role to a pending OAuth identity and
// turns it into an authenticated session. Any other session gets
// ErrNoPendingIdentity.
func (r *Resolver) CompleteOAuthSetup(ctx context.Context, role model.Role) (State, error) {
	if !r.state.NeedsRoleSelection() {
		return State{}, ErrNoPendingIdentity
	}
	parsed, ok := model.ParseRole(string(role))
	if !ok {
		return State{}, ErrInvalidRole
	}

	user := r.state.User.WithRole(parsed)
	data, err := json.Marshal(user)
	if err != nil {
		return State{}, err
	}
	writes := [][2]string{
		{keyUserData, string(data)},
		{keyUserRole, string(parsed)},
	}
	if err := r.persist(ctx, writes); err != nil {
		return State{}, err
	}

	r.state.User = &user
	r.state.Role = parsed
	r.state.Authenticated = true
	metrics.AuthEvents.WithLabelValues("complete_oauth", "success").Inc()
	return r.State(), nil
}

// Logout signs out of the OAuth provider and the backend on a best-effort
// basis, then always clears the local session.
func (r *Resolver) Logout(ctx context.Context) {
	if r.state.LoginMethod == model.LoginMethodGoogle && r.oauth != nil {
		token, _, _ := kv.Lookup(ctx, r.store, keyOAuthToken)
		callCtx, cancel := r.withTimeout(ctx, r.opts.OAuthTimeout)
		if err := r.oauth.SignOut(callCtx, token); err != nil {
			log.Printf("logout oauth sign-out failed: %v", err)
		}
		cancel()
	}

	refreshToken, _, err := kv.Lookup(ctx, r.store, keyRefreshToken)
	if err != nil {
		log.Printf("logout refresh token read failed: %v", err)
	}
	if refreshToken != "" && r.service != nil {
		callCtx, cancel := r.withTimeout(ctx, r.opts.ServiceTimeout)
		if err := r.service.Logout(callCtx, refreshToken); err != nil {
			log.Printf("logout backend notify failed: %v", err)
		}
		cancel()
	}

	r.wipe(ctx)
	metrics.AuthEvents.WithLabelValues("logout", "success").Inc()
}

// ClearAuthData drops the session without contacting any service.
func (r *Resolver) ClearAuthData(ctx context.Context) {
	r.wipe(ctx)
}

func (r *Resolver) wipe(ctx context.Context) {
	if err := r.store.Delete(ctx, authKeys...); err != nil {
		log.Printf("auth clear failed: %v", err)
	}
	r.state = State{}
}

func (r *Resolver) persist(ctx context.Context, writes [][2]string) error {
	for _, w := range writes {
		if w[1] == "" {
			if err := r.store.Delete(ctx, w[0]); err != nil {
				return err
			}
			continue
		}
		if err := r.store.Set(ctx, w[0], w[1]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
