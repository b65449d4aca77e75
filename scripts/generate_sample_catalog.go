//go:build ignore

package main

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"

	"storefront/internal/catalog"
	"storefront/internal/model"
)

// generateSampleCatalog writes gzipped catalog documents for local runs.
// File 1: 6 tiered products, file 2: 4 more plus one product with no base
// price, which the importer rejects.
//
// Run with: go run scripts/generate_sample_catalog.go
func main() {
	dataDir := "data/catalog"

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	faker := gofakeit.New(42)

	files := map[string][]model.Product{
		"catalog1.json.gz": sampleProducts(faker, "a", 6),
		"catalog2.json.gz": append(sampleProducts(faker, "b", 4), brokenProduct()),
	}

	for name, products := range files {
		path := filepath.Join(dataDir, name)
		if err := writeDocument(path, catalog.Document{Products: products}); err != nil {
			log.Fatalf("Failed to write %s: %v", path, err)
		}
		fmt.Printf("Created %s with %d products\n", path, len(products))
	}

	fmt.Println("\nImport with: go run ./cmd/seed -migrate data/catalog/catalog1.json.gz data/catalog/catalog2.json.gz")
}

func sampleProducts(faker *gofakeit.Faker, prefix string, n int) []model.Product {
	products := make([]model.Product, 0, n)
	for i := range n {
		id := fmt.Sprintf("%s-%03d", prefix, i+1)
		base := decimal.NewFromFloat(faker.Price(4, 12)).Round(2)

		variants := make([]model.Variant, 0, 3)
		for j := range faker.IntRange(1, 3) {
			flavor := faker.Fruit()
			variants = append(variants, model.Variant{
				ID:     fmt.Sprintf("%s-%s-%d", id, strings.ToLower(strings.ReplaceAll(flavor, " ", "-")), j),
				Flavor: flavor,
				Stock:  faker.IntRange(0, 80),
			})
		}

		products = append(products, model.Product{
			ID:          id,
			Name:        faker.ProductName(),
			Description: faker.ProductDescription(),
			Category:    faker.ProductCategory(),
			Variants:    variants,
			Tiers: []model.PriceTier{
				{Quantity: 1, Price: base},
				// Bulk tiers at 10% and 15% off.
				{Quantity: 3, Price: base.Mul(decimal.NewFromInt(3)).Mul(decimal.RequireFromString("0.90")).Round(2)},
				{Quantity: 5, Price: base.Mul(decimal.NewFromInt(5)).Mul(decimal.RequireFromString("0.85")).Round(2)},
			},
		})
	}
	return products
}

func brokenProduct() model.Product {
	return model.Product{
		ID:       "broken-001",
		Name:     "Product without a base price",
		Category: "misc",
		Variants: []model.Variant{{ID: "broken-001-plain", Flavor: "Plain", Stock: 5}},
		Tiers:    []model.PriceTier{{Quantity: 3, Price: decimal.RequireFromString("20.00")}},
	}
}

func writeDocument(path string, doc catalog.Document) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	gzWriter := gzip.NewWriter(file)
	defer gzWriter.Close()

	enc := json.NewEncoder(gzWriter)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
