// Package pricing loads the service price list and reshapes it into a flat
// map from resource type to USD price per unit (hours, or GiB-hours for
// run storage).
package pricing

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/me/omicsx/internal/logging"
	"github.com/me/omicsx/pkg/model"
)

// RunStorageKey is the catalog key of the per GiB-hour run storage price.
const RunStorageKey = "Run Storage"

// ProductFamilyCompute is the only product family that is priced.
const ProductFamilyCompute = "Compute"

// Catalog maps a resource type identifier (or RunStorageKey) to its price.
// It is not modified after it is built.
type Catalog map[string]model.PriceEntry

// Rate returns the USD price per unit for key.
func (c Catalog) Rate(key string) (float64, bool) {
	e, ok := c[key]
	if !ok {
		return 0, false
	}
	return e.Amount, true
}

// offerDocument is the subset of the offer index file the transform reads.
type offerDocument struct {
	Products map[string]offerProduct `json:"products"`
	Terms    struct {
		OnDemand map[string]map[string]offerTerm `json:"OnDemand"`
	} `json:"terms"`
}

type offerProduct struct {
	SKU           string            `json:"sku"`
	ProductFamily string            `json:"productFamily"`
	Attributes    map[string]string `json:"attributes"`
}

type offerTerm struct {
	PriceDimensions map[string]priceDimension `json:"priceDimensions"`
}

type priceDimension struct {
	Unit         string            `json:"unit"`
	PricePerUnit map[string]string `json:"pricePerUnit"`
}

// Parse reads an offer document and builds the Catalog.
func Parse(r io.Reader, logger *slog.Logger) (Catalog, error) {
	var doc offerDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode offer document: %w", err)
	}
	if doc.Products == nil {
		return nil, fmt.Errorf("offer document has no products")
	}
	return build(&doc, logging.OrDiscard(logger))
}

func build(doc *offerDocument, logger *slog.Logger) (Catalog, error) {
	// Walk products in code order so "last one wins" on duplicates is reproducible.
	codes := make([]string, 0, len(doc.Products))
	for code, p := range doc.Products {
		if p.ProductFamily == ProductFamilyCompute {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)

	catalog := make(Catalog, len(codes))
	for _, code := range codes {
		p := doc.Products[code]
		key := catalogKey(p)
		if key == "" {
			continue
		}

		amount, unit, err := onDemandPrice(doc, code)
		if err != nil {
			return nil, fmt.Errorf("product %s (%s): %w", code, key, err)
		}

		if prev, dup := catalog[key]; dup {
			logger.Warn("duplicate resource type in pricing catalog, keeping later entry",
				"resource_type", key, "previous_sku", prev.SKU, "sku", code)
		}
		catalog[key] = model.PriceEntry{Unit: unit, Amount: amount, SKU: code}
	}
	return catalog, nil
}

// catalogKey returns the key a Compute product is stored under, or "" if the
// product is not directly billable.
func catalogKey(p offerProduct) string {
	if isRunStorage(p) {
		return RunStorageKey
	}
	return p.Attributes["resourceType"]
}

// isRunStorage matches the fixed storage entry by its resource type, or by a
// usage type of the form "<region>-RunStorage" when the resource type is absent.
func isRunStorage(p offerProduct) bool {
	if p.Attributes["resourceType"] == RunStorageKey {
		return true
	}
	usage := p.Attributes["usagetype"]
	return usage == "RunStorage" || strings.HasSuffix(usage, "-RunStorage")
}

// onDemandPrice resolves the single on-demand term of a product and its single
// price dimension, returning the USD amount and the dimension's own unit.
func onDemandPrice(doc *offerDocument, code string) (float64, string, error) {
	terms, ok := doc.Terms.OnDemand[code]
	if !ok || len(terms) == 0 {
		return 0, "", fmt.Errorf("no on-demand term")
	}
	term := firstValue(terms)
	if len(term.PriceDimensions) == 0 {
		return 0, "", fmt.Errorf("no price dimension")
	}
	dim := firstValue(term.PriceDimensions)
	raw, ok := dim.PricePerUnit["USD"]
	if !ok {
		return 0, "", fmt.Errorf("no USD price")
	}
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parse USD price %q: %w", raw, err)
	}
	return amount, dim.Unit, nil
}

// firstValue returns the entry with the smallest key. Offer terms and price
// dimensions hold exactly one entry in practice.
func firstValue[V any](m map[string]V) V {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return m[keys[0]]
}
