package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/erg0nix/chorus/internal/backend"
	"github.com/erg0nix/chorus/internal/budget"
	"github.com/erg0nix/chorus/internal/config"
	personaConfig "github.com/erg0nix/chorus/internal/config/personas"
	"github.com/erg0nix/chorus/internal/ensemble"
	"github.com/erg0nix/chorus/internal/guard"
	"github.com/erg0nix/chorus/internal/knowledge"
	"github.com/erg0nix/chorus/internal/persona"
	"github.com/erg0nix/chorus/internal/session"
)

// Services is everything a front end needs, built once from the config.
type Services struct {
	Config   config.Config
	Personas *persona.Registry
	Sessions *session.Manager
	Ensemble *ensemble.Broadcaster
	Enricher *knowledge.Enricher
}

// NewServices seeds the bundled personas, loads the catalog and wires the conversation
// pipeline. Any error here is an operator error.
func NewServices(cfg config.Config, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := personaConfig.EnsureDefaults(cfg.PersonasDir); err != nil {
		logger.Warn("failed to ensure default personas", "error", err)
	}

	registry := persona.NewRegistry(cfg.PersonasDir)
	catalog, err := registry.LoadCatalog()
	if err != nil {
		return nil, fmt.Errorf("load personas: %w", err)
	}
	if catalog.Len() == 0 {
		return nil, fmt.Errorf("no personas found in %s", cfg.PersonasDir)
	}

	g, err := guard.FromConfig(cfg.Guard)
	if err != nil {
		return nil, fmt.Errorf("guard: %w", err)
	}

	b, err := backend.FromConfig(cfg.Backend, config.LoadDebugConfigFromEnv(cfg.Debug), logger)
	if err != nil {
		return nil, fmt.Errorf("backend: %w", err)
	}

	enricher := knowledge.FromConfig(cfg.Knowledge, logger)

	auditDir := ""
	if cfg.Audit.Enabled {
		auditDir = cfg.Audit.Directory
	}

	sessions := session.NewManager(catalog, session.Options{
		Backend:   b,
		Model:     cfg.Backend.Model,
		KeepAlive: cfg.Backend.KeepAliveDuration(),
		Guard:     g,
		Enricher:  enricher,
		Policy:    budget.PolicyFromConfig(cfg.Budget),
		Filter:    session.NewFilter(cfg.Stream),
		AuditDir:  auditDir,
		Logger:    logger,
	})

	return &Services{
		Config:   cfg,
		Personas: registry,
		Sessions: sessions,
		Ensemble: &ensemble.Broadcaster{Sessions: sessions},
		Enricher: enricher,
	}, nil
}

func (s *Services) Close() error {
	return errors.Join(s.Sessions.Close(), s.Enricher.Close())
}
