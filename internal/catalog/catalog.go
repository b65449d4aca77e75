// Package catalog imports product documents into the product store.
//
// A document is a JSON object {"products": [...]} and may be gzip
// compressed. Every product is checked before it reaches the store, so a
// malformed tier table or variant list never becomes sellable.
package catalog

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"storefront/internal/model"
	"storefront/internal/pricing"
)

// Document is one catalog file.
type Document struct {
	Products []model.Product `json:"products"`
}

// Loader reads a catalog document by path or object key.
type Loader interface {
	Load(ctx context.Context, path string) (*Document, error)
}

// ProductStore persists imported products.
type ProductStore interface {
	Upsert(ctx context.Context, product *model.Product) error
}

var gzipMagic = []byte{0x1f, 0x8b}

// Decode reads a document from r, transparently inflating gzip input.
func Decode(r io.Reader) (*Document, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read catalog document: %w", err)
	}

	var src io.Reader = br
	if bytes.Equal(head, gzipMagic) {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		src = gz
	}

	var doc Document
	if err := json.NewDecoder(src).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode catalog document: %w", err)
	}
	return &doc, nil
}

// idSeparator joins product and variant ids into cart line ids.
const idSeparator = ":"

// Validate checks one product before it is stored.
func Validate(p model.Product) error {
	fields := make(map[string]string)

	switch {
	case strings.TrimSpace(p.ID) == "":
		fields["id"] = "is required"
	case strings.Contains(p.ID, idSeparator):
		fields["id"] = fmt.Sprintf("must not contain %q", idSeparator)
	}
	if strings.TrimSpace(p.Name) == "" {
		fields["name"] = "is required"
	}

	if len(p.Variants) == 0 {
		fields["variants"] = "at least one variant is required"
	}
	seen := make(map[string]struct{}, len(p.Variants))
	for i, v := range p.Variants {
		key := fmt.Sprintf("variants[%d]", i)
		switch {
		case strings.TrimSpace(v.ID) == "":
			fields[key] = "id is required"
		case strings.Contains(v.ID, idSeparator):
			fields[key] = fmt.Sprintf("id must not contain %q", idSeparator)
		case v.Stock < 0:
			fields[key] = "stock must not be negative"
		default:
			if _, dup := seen[v.ID]; dup {
				fields[key] = fmt.Sprintf("duplicate variant id %s", v.ID)
			}
		}
		seen[v.ID] = struct{}{}
	}

	if err := pricing.ValidateTiers(p.Tiers); err != nil {
		fields["tiers"] = err.Error()
	}

	if len(fields) > 0 {
		return &model.ValidationError{Fields: fields}
	}
	return nil
}
