package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"storefront/internal/pricing"
)

// Rejection records a product that failed validation.
type Rejection struct {
	ProductID string
	File      string
	Err       error
}

// Result summarises an import run.
type Result struct {
	Files    int
	Imported int
	Rejected []Rejection
}

// Importer loads catalog files and upserts every valid product.
type Importer struct {
	loader Loader
	store  ProductStore
	logger zerolog.Logger
}

// NewImporter creates an importer.
func NewImporter(loader Loader, store ProductStore, logger zerolog.Logger) *Importer {
	return &Importer{
		loader: loader,
		store:  store,
		logger: logger.With().Str("component", "catalog-importer").Logger(),
	}
}

// Import loads all files concurrently, then validates and stores their
// products in file order. A file that cannot be loaded aborts the run before
// anything is written. Invalid products are skipped and reported.
func (im *Importer) Import(ctx context.Context, paths []string) (Result, error) {
	type loadResult struct {
		index int
		doc   *Document
		err   error
	}

	resultChan := make(chan loadResult, len(paths))
	var wg sync.WaitGroup

	for i, path := range paths {
		wg.Add(1)
		go func(index int, path string) {
			defer wg.Done()
			doc, err := im.loader.Load(ctx, path)
			resultChan <- loadResult{index: index, doc: doc, err: err}
		}(i, path)
	}

	wg.Wait()
	close(resultChan)

	results := make([]loadResult, len(paths))
	for result := range resultChan {
		results[result.index] = result
	}

	for i, result := range results {
		if result.err != nil {
			im.logger.Error().Err(result.err).Str("file", paths[i]).Msg("failed to load catalog file")
			return Result{}, fmt.Errorf("failed to load catalog file %s: %w", paths[i], result.err)
		}
	}

	res := Result{Files: len(paths)}
	for i, result := range results {
		for _, product := range result.doc.Products {
			if err := Validate(product); err != nil {
				im.logger.Warn().
					Err(err).
					Str("file", paths[i]).
					Str("product_id", product.ID).
					Msg("skipping invalid product")
				res.Rejected = append(res.Rejected, Rejection{ProductID: product.ID, File: paths[i], Err: err})
				continue
			}

			product.Tiers = pricing.SortTiers(product.Tiers)
			for j := range product.Variants {
				product.Variants[j].ProductID = product.ID
			}

			if err := im.store.Upsert(ctx, &product); err != nil {
				return res, fmt.Errorf("failed to store product %s: %w", product.ID, err)
			}
			res.Imported++
		}
	}

	im.logger.Info().
		Int("files", res.Files).
		Int("imported", res.Imported).
		Int("rejected", len(res.Rejected)).
		Msg("catalog import finished")

	return res, nil
}
