package manager

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tensord/internal/catalog"
	"tensord/internal/engine"
	"tensord/internal/hooks"
)

// LayerPolicy decides what happens when a catalog layer name matches no
// parameter of the loaded module.
type LayerPolicy string

const (
	// LayerPolicySkip logs a warning and leaves the parameter untouched.
	LayerPolicySkip LayerPolicy = "skip"
	// LayerPolicyError fails the load with an integrity error.
	LayerPolicyError LayerPolicy = "error"
)

// ParseLayerPolicy maps a config value to a LayerPolicy; empty means skip.
func ParseLayerPolicy(s string) (LayerPolicy, bool) {
	switch LayerPolicy(s) {
	case "", LayerPolicySkip:
		return LayerPolicySkip, true
	case LayerPolicyError:
		return LayerPolicyError, true
	default:
		return "", false
	}
}

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	// Catalog resolves model names. Defaults to an empty in-memory catalog.
	Catalog catalog.Store
	// Runtime loads artifacts. Defaults to engine.NewDefault.
	Runtime engine.Runtime
	// ModelRoot replaces the {model_path} token in catalog paths.
	ModelRoot string
	// VerifyChecksums compares the artifact md5 with the catalog value on load.
	VerifyChecksums bool
	// UnmatchedLayers defaults to LayerPolicySkip.
	UnmatchedLayers LayerPolicy
	// Logger defaults to zerolog.Nop().
	Logger *zerolog.Logger
	// Publisher receives lifecycle events. Defaults to a no-op.
	Publisher EventPublisher
	// DefaultHooks runs once before the first hook lookup. Defaults to
	// hooks.DefaultRegistration over Catalog.
	DefaultHooks func(ctx context.Context, r hooks.Registrar) error
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		catalog:         cfg.Catalog,
		runtime:         cfg.Runtime,
		modelRoot:       cfg.ModelRoot,
		verifyChecksums: cfg.VerifyChecksums,
		layerPolicy:     cfg.UnmatchedLayers,
		publisher:       cfg.Publisher,
		defaultHooks:    cfg.DefaultHooks,
		models:          make(map[string]*loadedModel),
		pre:             make(map[string]hooks.Preprocess),
		numeric:         make(map[string]hooks.PostprocessNumeric),
		text:            make(map[string]hooks.PostprocessText),
		startTime:       time.Now(),
	}
	// Apply defaults if unset
	if m.catalog == nil {
		m.catalog = catalog.NewMemoryStore()
	}
	if m.runtime == nil {
		m.runtime = engine.NewDefault(engine.Options{})
	}
	if m.layerPolicy == "" {
		m.layerPolicy = LayerPolicySkip
	}
	if cfg.Logger != nil {
		m.log = *cfg.Logger
	} else {
		m.log = zerolog.Nop()
	}
	if m.publisher == nil {
		m.publisher = noopPublisher{}
	}
	if m.defaultHooks == nil {
		m.defaultHooks = hooks.DefaultRegistration(m.catalog)
	}
	return m
}
