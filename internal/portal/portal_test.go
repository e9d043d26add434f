package portal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolbridge/portal/internal/kv"
	"schoolbridge/portal/internal/model"
	"schoolbridge/portal/internal/tenant"
)

const installation = "6f1c2a9e-1d7b-4a53-9e54-0f2f1d7c9a10"

func seedSession(t *testing.T, store kv.Store, values map[string]string) {
	t.Helper()
	scoped := kv.Namespace(store, "installation:"+installation)
	for key, value := range values {
		require.NoError(t, scoped.Set(context.Background(), key, value))
	}
}

func access(t *testing.T, reg *Registry) Access {
	t.Helper()
	var out Access
	require.NoError(t, reg.With(context.Background(), installation, func(p *Portal) error {
		out = p.Access()
		return nil
	}))
	return out
}

func TestFreshInstallationStartsSignedOut(t *testing.T) {
	store := kv.NewMemoryStore()
	reg := NewRegistry(store, Deps{})

	a := access(t, reg)
	assert.Equal(t, ScreenSetAuth, a.ScreenSet)
	assert.False(t, a.Session.Authenticated)
	assert.Nil(t, a.Session.User)
	assert.Equal(t, tenant.DefaultTenantID, a.Tenant.ID)
	assert.True(t, a.Tenant.Initialized)
	assert.Empty(t, a.Assignment.Permissions)

	for _, key := range store.Keys() {
		assert.Contains(t, key, "installation:"+installation+":")
	}
}

func TestRestoredSessionReachesDashboard(t *testing.T) {
	store := kv.NewMemoryStore()
	seedSession(t, store, map[string]string{
		"@schoolbridge_user_data":    `{"id":"7","name":"Ada","role":"admin"}`,
		"@schoolbridge_user_role":    "admin",
		"@schoolbridge_login_method": "email",
	})
	reg := NewRegistry(store, Deps{})

	a := access(t, reg)
	assert.Equal(t, ScreenSetDashboard, a.ScreenSet)
	assert.Equal(t, model.RoleAdmin, a.Session.Role)
	assert.Contains(t, a.Assignment.Permissions, "manage_users")
	assert.Equal(t, "#DC2626", a.Assignment.Theme.Primary)
}

func TestPendingGoogleSessionNeedsRoleSelection(t *testing.T) {
	store := kv.NewMemoryStore()
	seedSession(t, store, map[string]string{
		"@schoolbridge_user_data":    `{"id":"g-1","email":"grace@school.test"}`,
		"@schoolbridge_login_method": "google",
	})
	reg := NewRegistry(store, Deps{})

	a := access(t, reg)
	assert.Equal(t, ScreenSetRoleSelection, a.ScreenSet)
	assert.True(t, a.Session.NeedsRoleSelection)
	require.NotNil(t, a.Session.User)
	assert.Equal(t, "g-1", a.Session.User.ID)
}

func TestRoleFollowsTenantSwitch(t *testing.T) {
	store := kv.NewMemoryStore()
	seedSession(t, store, map[string]string{
		"@schoolbridge_user_data":    `{"id":"3","role":"parent"}`,
		"@schoolbridge_user_role":    "parent",
		"@schoolbridge_login_method": "email",
	})
	reg := NewRegistry(store, Deps{})

	require.NoError(t, reg.With(context.Background(), installation, func(p *Portal) error {
		assert.False(t, p.Roles.HasPermission("track_transport"))
		res := p.Tenant.SwitchTenant(context.Background(), "riverside", tenant.Config{
			SchoolName: "Riverside",
			Features:   map[string]bool{"transport": true},
		})
		require.True(t, res.OK())
		assert.True(t, p.Roles.HasPermission("track_transport"))
		assert.True(t, p.Roles.CanAccessScreen("Transport"))
		return nil
	}))
}

func TestWithPropagatesError(t *testing.T) {
	reg := NewRegistry(kv.NewMemoryStore(), Deps{})
	boom := errors.New("boom")
	err := reg.With(context.Background(), installation, func(*Portal) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestNavigationState(t *testing.T) {
	reg := NewRegistry(kv.NewMemoryStore(), Deps{})
	ctx := context.Background()

	require.NoError(t, reg.With(ctx, installation, func(p *Portal) error {
		_, ok, err := p.NavigationState(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		assert.ErrorIs(t, p.SaveNavigationState(ctx, json.RawMessage(`{broken`)), ErrInvalidNavigationState)
		assert.ErrorIs(t, p.SaveNavigationState(ctx, nil), ErrInvalidNavigationState)

		require.NoError(t, p.SaveNavigationState(ctx, json.RawMessage(`{"index":1,"routes":["Home","Grades"]}`)))
		raw, ok, err := p.NavigationState(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.JSONEq(t, `{"index":1,"routes":["Home","Grades"]}`, string(raw))
		return nil
	}))
}

func TestEvictIdlePortals(t *testing.T) {
	store := kv.NewMemoryStore()
	reg := NewRegistry(store, Deps{})
	now := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, reg.With(ctx, installation, func(p *Portal) error {
		return p.SaveNavigationState(ctx, json.RawMessage(`{"index":0}`))
	}))
	require.NoError(t, reg.With(ctx, "other", func(*Portal) error { return nil }))
	require.Equal(t, 2, reg.Len())

	now = now.Add(10 * time.Minute)
	require.NoError(t, reg.With(ctx, "other", func(*Portal) error { return nil }))

	now = now.Add(25 * time.Minute)
	assert.Equal(t, 1, reg.Evict(30*time.Minute))
	assert.Equal(t, 1, reg.Len())

	require.NoError(t, reg.With(ctx, installation, func(p *Portal) error {
		_, ok, err := p.NavigationState(ctx)
		require.NoError(t, err)
		assert.True(t, ok, "state survives eviction")
		return nil
	}))
}

func TestTenantFlagsSurviveRebuild(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	seedSession(t, store, map[string]string{
		"@schoolbridge_user_data":    `{"id":"4","role":"student"}`,
		"@schoolbridge_user_role":    "student",
		"@schoolbridge_login_method": "email",
	})
	scoped := kv.Namespace(store, "installation:"+installation)

	first := New(scoped, Deps{})
	first.Start(ctx)
	require.True(t, first.Tenant.SwitchTenant(ctx, "bare", tenant.Config{
		SchoolName: "Bare School",
		Features:   map[string]bool{},
	}).OK())
	before := first.Roles.HasPermission("access_online_classes")

	second := New(scoped, Deps{})
	second.Start(ctx)
	assert.False(t, before)
	assert.Equal(t, before, second.Roles.HasPermission("access_online_classes"))
	assert.Equal(t, first.Access().Assignment, second.Access().Assignment)
}
