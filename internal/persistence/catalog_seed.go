package persistence

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/support-workflow/internal/domain"
	"github.com/spec-kit/support-workflow/internal/repository"
)

// LoadCatalogFile reads and validates a catalog seed file.
func LoadCatalogFile(path string) (domain.Catalog, error) {
	var catalog domain.Catalog
	data, err := os.ReadFile(path)
	if err != nil {
		return catalog, fmt.Errorf("read catalog seed: %w", err)
	}
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return catalog, fmt.Errorf("parse catalog seed %s: %w", path, err)
	}
	if err := ValidateCatalog(catalog); err != nil {
		return catalog, fmt.Errorf("catalog seed %s: %w", path, err)
	}
	return catalog, nil
}

// ValidateCatalog checks ids are present and unique and exactly one status is the default.
func ValidateCatalog(catalog domain.Catalog) error {
	if len(catalog.Statuses) == 0 {
		return fmt.Errorf("no statuses defined")
	}
	defaults := 0
	seen := map[string]bool{}
	for _, s := range catalog.Statuses {
		if s.ID == "" || s.Name == "" {
			return fmt.Errorf("status entries need id and name")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate status %q", s.ID)
		}
		seen[s.ID] = true
		if s.IsDefault {
			if s.IsClosed {
				return fmt.Errorf("default status %q cannot be closed", s.ID)
			}
			defaults++
		}
	}
	if defaults != 1 {
		return fmt.Errorf("expected exactly one default status, got %d", defaults)
	}

	seen = map[string]bool{}
	for _, c := range catalog.Categories {
		if c.ID == "" || seen[c.ID] {
			return fmt.Errorf("invalid or duplicate category %q", c.ID)
		}
		seen[c.ID] = true
	}
	seen = map[string]bool{}
	for _, p := range catalog.Priorities {
		if p.ID == "" || seen[p.ID] {
			return fmt.Errorf("invalid or duplicate priority %q", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// SeedCatalog upserts the catalog in a single transaction.
func SeedCatalog(ctx context.Context, pool *pgxpool.Pool, catalog domain.Catalog, logger *zap.Logger) error {
	if pool == nil {
		logger.Warn("no postgres pool available; skipping catalog seed")
		return nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin catalog seed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := repository.NewCatalogRepository(tx).Upsert(ctx, catalog); err != nil {
		return fmt.Errorf("upsert catalog: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit catalog seed: %w", err)
	}

	logger.Info("catalog seeded",
		zap.Int("statuses", len(catalog.Statuses)),
		zap.Int("categories", len(catalog.Categories)),
		zap.Int("priorities", len(catalog.Priorities)),
	)
	return nil
}
