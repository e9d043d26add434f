package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"schoolbridge/portal/internal/kv"
	"schoolbridge/portal/internal/metrics"
	"schoolbridge/portal/internal/result"
)

const (
	keyCurrentTenant = "@schoolbridge_current_tenant"
	keyTenantConfig  = "@schoolbridge_tenant_config"

	DefaultTenantID   = "default"
	DefaultSchoolName = "SchoolBridge Demo"
)

type Branding struct {
	PrimaryColor   string `json:"primaryColor,omitempty"`
	SecondaryColor string `json:"secondaryColor,omitempty"`
	Logo           string `json:"logo,omitempty"`
}

type Settings struct {
	AcademicYear string `json:"academicYear,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
	Currency     string `json:"currency,omitempty"`
	Language     string `json:"language,omitempty"`
	DateFormat   string `json:"dateFormat,omitempty"`
	GradeScale   string `json:"gradeScale,omitempty"`
}

// Config is the persisted tenant configuration blob. A nil Features map means
// the built-in defaults; an empty one means every flag is off.
type Config struct {
	SchoolName string          `json:"schoolName"`
	Branding   Branding        `json:"branding"`
	Features   map[string]bool `json:"features"`
	Settings   Settings        `json:"settings"`
}

// Snapshot is the composed view of the active tenant. Branding, Features and
// Settings have defaults filled in where Config leaves gaps.
type Snapshot struct {
	ID          string          `json:"id"`
	Config      Config          `json:"config"`
	Initialized bool            `json:"initialized"`
	Branding    Branding        `json:"branding"`
	Features    map[string]bool `json:"features"`
	Settings    Settings        `json:"settings"`
}

var defaultBranding = Branding{PrimaryColor: "#1E3A8A", SecondaryColor: "#3B82F6"}

var defaultSettings = Settings{
	AcademicYear: "2024-2025",
	Timezone:     "UTC",
	Currency:     "USD",
	Language:     "en",
	DateFormat:   "DD/MM/YYYY",
	GradeScale:   "A-F",
}

func defaultFeatures() map[string]bool {
	return map[string]bool{
		"attendance_tracking": true,
		"online_learning":     true,
		"fee_payment":         true,
		"messaging":           true,
		"parent_portal":       true,
		"library":             false,
		"transport":           false,
		"analytics":           false,
	}
}

// DefaultConfig is the built-in tenant used when nothing is persisted.
func DefaultConfig() Config {
	return Config{
		SchoolName: DefaultSchoolName,
		Branding:   defaultBranding,
		Features:   defaultFeatures(),
		Settings:   defaultSettings,
	}
}

// Resolver owns the active tenant of one installation.
type Resolver struct {
	store       kv.Store
	id          string
	config      Config
	initialized bool
}

func NewResolver(store kv.Store) *Resolver {
	return &Resolver{store: store}
}

// LoadStoredTenant adopts the persisted tenant, or seeds and adopts the
// default one. The resolver always ends up initialized; a storage problem is
// reported as a partial result carrying the default tenant.
func (r *Resolver) LoadStoredTenant(ctx context.Context) result.Result[Snapshot] {
	id, hasID, err := kv.Lookup(ctx, r.store, keyCurrentTenant)
	var raw string
	var hasConfig bool
	if err == nil {
		raw, hasConfig, err = kv.Lookup(ctx, r.store, keyTenantConfig)
	}
	if err != nil {
		log.Printf("tenant load failed, using default: %v", err)
		r.adopt(DefaultTenantID, DefaultConfig())
		return result.Partial(r.Current(), result.KindStorage, "Could not load school configuration")
	}

	if hasID && hasConfig && strings.TrimSpace(id) != "" {
		var cfg Config
		if err := json.Unmarshal([]byte(raw), &cfg); err == nil {
			r.adopt(id, cfg)
			return result.Ok(r.Current())
		}
		log.Printf("tenant %s config unreadable, reseeding default", id)
	}

	r.adopt(DefaultTenantID, DefaultConfig())
	if err := r.persist(ctx, DefaultTenantID, r.config); err != nil {
		log.Printf("tenant default seed failed: %v", err)
		return result.Partial(r.Current(), result.KindStorage, "Could not save school configuration")
	}
	return result.Ok(r.Current())
}

// SwitchTenant replaces the active tenant as a whole. Nothing from the
// previous configuration is merged in.
func (r *Resolver) SwitchTenant(ctx context.Context, id string, cfg Config) result.Result[Snapshot] {
	res := r.switchTenant(ctx, id, cfg)
	metrics.TenantSwitches.WithLabelValues(metrics.Outcome(res.OK())).Inc()
	return res
}

func (r *Resolver) switchTenant(ctx context.Context, id string, cfg Config) result.Result[Snapshot] {
	id = strings.TrimSpace(id)
	if id == "" || strings.TrimSpace(cfg.SchoolName) == "" {
		return result.Fail[Snapshot](result.KindInvalidInput, "Tenant id and school name are required")
	}
	if err := r.persist(ctx, id, cfg); err != nil {
		log.Printf("tenant switch to %s failed: %v", id, err)
		return result.Fail[Snapshot](result.KindStorage, "Could not switch school")
	}
	r.adopt(id, cfg)
	log.Printf("tenant switched to %s", id)
	return result.Ok(r.Current())
}

// persist writes the config before the id. If the id write fails the previous
// config is put back so the stored pair stays consistent.
func (r *Resolver) persist(ctx context.Context, id string, cfg Config) error {
	blob, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode tenant config: %w", err)
	}
	previous, hadPrevious, _ := kv.Lookup(ctx, r.store, keyTenantConfig)
	if err := r.store.Set(ctx, keyTenantConfig, string(blob)); err != nil {
		return err
	}
	if err := r.store.Set(ctx, keyCurrentTenant, id); err != nil {
		if hadPrevious {
			_ = r.store.Set(ctx, keyTenantConfig, previous)
		} else {
			_ = r.store.Delete(ctx, keyTenantConfig)
		}
		return err
	}
	return nil
}

func (r *Resolver) adopt(id string, cfg Config) {
	cfg.Features = copyFeatures(cfg.Features)
	r.id = id
	r.config = cfg
	r.initialized = true
}

func (r *Resolver) Current() Snapshot {
	cfg := r.config
	cfg.Features = copyFeatures(cfg.Features)
	return Snapshot{
		ID:          r.id,
		Config:      cfg,
		Initialized: r.initialized,
		Branding:    brandingOf(cfg),
		Features:    featuresOf(cfg),
		Settings:    settingsOf(cfg),
	}
}

// Features returns the effective feature flags of the active tenant.
func (r *Resolver) Features() map[string]bool {
	return featuresOf(r.config)
}

func (r *Resolver) IsFeatureEnabled(name string) bool {
	return featuresOf(r.config)[name]
}

// APIEndpoint builds the backend path for the active tenant. The default
// tenant talks to the unscoped API.
func (r *Resolver) APIEndpoint(path string) string {
	path = strings.TrimLeft(path, "/")
	if r.id == "" || r.id == DefaultTenantID {
		return "/api/" + path
	}
	return "/api/tenants/" + r.id + "/" + path
}

// ClearTenantData forgets the tenant. The next LoadStoredTenant seeds the
// default again.
func (r *Resolver) ClearTenantData(ctx context.Context) error {
	err := r.store.Delete(ctx, keyCurrentTenant, keyTenantConfig)
	if err != nil {
		log.Printf("tenant clear failed: %v", err)
	}
	r.id = ""
	r.config = Config{}
	r.initialized = false
	return err
}

func brandingOf(cfg Config) Branding {
	b := cfg.Branding
	if b.PrimaryColor == "" {
		b.PrimaryColor = defaultBranding.PrimaryColor
	}
	if b.SecondaryColor == "" {
		b.SecondaryColor = defaultBranding.SecondaryColor
	}
	return b
}

func featuresOf(cfg Config) map[string]bool {
	if cfg.Features == nil {
		return defaultFeatures()
	}
	return copyFeatures(cfg.Features)
}

func settingsOf(cfg Config) Settings {
	s := cfg.Settings
	fill := func(dst *string, fallback string) {
		if *dst == "" {
			*dst = fallback
		}
	}
	fill(&s.AcademicYear, defaultSettings.AcademicYear)
	fill(&s.Timezone, defaultSettings.Timezone)
	fill(&s.Currency, defaultSettings.Currency)
	fill(&s.Language, defaultSettings.Language)
	fill(&s.DateFormat, defaultSettings.DateFormat)
	fill(&s.GradeScale, defaultSettings.GradeScale)
	return s
}

func copyFeatures(in map[string]bool) map[string]bool {
	if in == nil {
		return nil
	}
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
