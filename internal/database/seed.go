package database

import (
	"context"
	"fmt"

	"reservation-engine/internal/config"
)

// SeedCatalog writes the configured resources, principals and owner groups.
// Existing rows with the same ids are updated, so seeding is repeatable.
func (db *DB) SeedCatalog(ctx context.Context, cfg *config.Config) error {
	for i := range cfg.Principals {
		if err := db.PutPrincipal(ctx, &cfg.Principals[i]); err != nil {
			return fmt.Errorf("failed to seed principals: %w", err)
		}
	}
	for _, g := range cfg.Groups {
		if err := db.PutGroup(ctx, g.ID, g.Name, g.Members); err != nil {
			return fmt.Errorf("failed to seed groups: %w", err)
		}
	}
	for i := range cfg.Resources {
		if err := db.PutResource(ctx, &cfg.Resources[i]); err != nil {
			return fmt.Errorf("failed to seed resources: %w", err)
		}
	}

	db.logger.Info().
		Int("resources", len(cfg.Resources)).
		Int("principals", len(cfg.Principals)).
		Int("groups", len(cfg.Groups)).
		Msg("Catalog seeded")
	return nil
}
