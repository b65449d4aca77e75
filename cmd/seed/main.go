package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/repository"
)

// seed imports catalog documents into the product tables. Paths given on the
// command line replace CATALOG_FILES.
func main() {
	migrate := flag.Bool("migrate", false, "apply migrations before importing")
	flag.Parse()

	if err := run(*migrate, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(migrate bool, paths []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := config.NewLogger(cfg.Logger).With().Str("command", "seed").Logger()

	if len(paths) == 0 {
		paths = cfg.Catalog.Files
	}
	if len(paths) == 0 {
		return fmt.Errorf("no catalog files given and CATALOG_FILES is empty")
	}

	ctx := context.Background()
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	if migrate {
		if err := database.Migrate(ctx, pool, logger); err != nil {
			return err
		}
	}

	importer := catalog.NewImporter(
		catalog.NewConfiguredLoader(ctx, cfg.Catalog, logger),
		repository.NewProductRepository(pool, logger),
		logger,
	)

	res, err := importer.Import(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to import catalog: %w", err)
	}

	for _, r := range res.Rejected {
		logger.Warn().
			Str("product_id", r.ProductID).
			Str("file", r.File).
			Err(r.Err).
			Msg("product rejected")
	}
	logger.Info().
		Int("files", res.Files).
		Int("imported", res.Imported).
		Int("rejected", len(res.Rejected)).
		Msg("catalog import finished")
	return nil
}
