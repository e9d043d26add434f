package role

import (
	"errors"
	"log"
	"sort"

	"schoolbridge/portal/internal/metrics"
	"schoolbridge/portal/internal/model"
)

var ErrRoleNotFound = errors.New("role_not_found")

// Assignment is the derived view of a role under a tenant's feature flags.
// It is rebuilt on every read and never stored.
type Assignment struct {
	Role        model.Role `json:"role"`
	Permissions []string   `json:"permissions"`
	Navigation  []NavEntry `json:"navigation"`
	Widgets     []Widget   `json:"widgets"`
	Theme       Theme      `json:"theme"`
}

// Cleared is the assignment of a session without a role.
func Cleared() Assignment {
	return Assignment{
		Permissions: []string{},
		Navigation:  []NavEntry{},
		Widgets:     []Widget{},
		Theme:       DefaultTheme,
	}
}

func (a Assignment) HasPermission(permission string) bool {
	for _, p := range a.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

func (a Assignment) CanAccessScreen(screen string) bool {
	for _, entry := range a.Navigation {
		if entry.Target == screen {
			return true
		}
	}
	return false
}

// Derive computes the assignment for role under features. An empty role gives
// the cleared assignment; an unknown one gives the cleared assignment and
// ErrRoleNotFound. A failure while deriving is logged and also degrades to the
// cleared assignment.
func Derive(value string, features map[string]bool) (out Assignment, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("role derivation failed for %q: %v", value, rec)
			metrics.DerivationFailures.Inc()
			out, err = Cleared(), nil
		}
	}()

	if value == "" {
		return Cleared(), nil
	}
	r, ok := model.ParseRole(value)
	if !ok {
		if r == "" {
			return Cleared(), nil
		}
		return Cleared(), ErrRoleNotFound
	}

	permissions := append([]string{}, basePermissions[r]...)
	if r == model.RoleAdmin {
		permissions = append(permissions, AllPermissions...)
	}
	navigation := append([]NavEntry{}, baseNavigation[r]...)
	for _, e := range featureExtras {
		if e.role != r || !features[e.feature] {
			continue
		}
		if e.permission != "" {
			permissions = append(permissions, e.permission)
		}
		if e.nav != nil {
			navigation = append(navigation, *e.nav)
		}
	}

	widgets := append([]Widget{}, baseWidgets[r]...)
	sort.SliceStable(widgets, func(i, j int) bool { return widgets[i].Priority < widgets[j].Priority })

	return Assignment{
		Role:        r,
		Permissions: dedupe(permissions),
		Navigation:  dedupeNavigation(navigation),
		Widgets:     widgets,
		Theme:       themes[r],
	}, nil
}

func dedupeNavigation(entries []NavEntry) []NavEntry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]NavEntry, 0, len(entries))
	for _, entry := range entries {
		if _, ok := seen[entry.Target]; ok {
			continue
		}
		seen[entry.Target] = struct{}{}
		out = append(out, entry)
	}
	return out
}

// RoleMetadata returns the static description of a role.
func RoleMetadata(value string) (Metadata, bool) {
	r, ok := model.ParseRole(value)
	if !ok {
		return Metadata{}, false
	}
	meta := metadata[r]
	meta.Features = append([]string{}, meta.Features...)
	return meta, true
}

// AvailableRoles lists the roles offered during role selection.
func AvailableRoles() []Metadata {
	out := make([]Metadata, 0, len(model.Roles))
	for _, r := range model.Roles {
		meta, _ := RoleMetadata(string(r))
		out = append(out, meta)
	}
	return out
}

type RoleSource interface {
	CurrentRole() model.Role
}

type FeatureSource interface {
	Features() map[string]bool
}

// Resolver answers access questions for the current role and tenant. Nothing
// is cached; every call derives from the sources' current values.
type Resolver struct {
	roles    RoleSource
	features FeatureSource
}

func NewResolver(roles RoleSource, features FeatureSource) *Resolver {
	return &Resolver{roles: roles, features: features}
}

func (r *Resolver) Current() (Assignment, error) {
	return Derive(string(r.roles.CurrentRole()), r.features.Features())
}

func (r *Resolver) HasPermission(permission string) bool {
	assignment, err := r.Current()
	if err != nil {
		return false
	}
	return assignment.HasPermission(permission)
}

// HasFeatureAccess requires the role to list the feature and the tenant not to
// have switched it off. Flags the tenant leaves unset count as allowed.
func (r *Resolver) HasFeatureAccess(feature string) bool {
	meta, ok := RoleMetadata(string(r.roles.CurrentRole()))
	if !ok {
		return false
	}
	listed := false
	for _, f := range meta.Features {
		if f == feature {
			listed = true
			break
		}
	}
	if !listed {
		return false
	}
	enabled, set := r.features.Features()[feature]
	return !set || enabled
}

func (r *Resolver) CanAccessScreen(screen string) bool {
	assignment, err := r.Current()
	if err != nil {
		return false
	}
	return assignment.CanAccessScreen(screen)
}
