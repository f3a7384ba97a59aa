package subscription

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"
)

// Plan is a static catalog entry. Immutable reference data, not user
// state: the catalog is loaded once at startup and shared read-only.
type Plan struct {
	// Key is the stable identifier stored on profiles and used by
	// downstream feature gates.
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
	// CreditsPerCycle is the allowance granted on checkout and on each
	// paid renewal invoice.
	CreditsPerCycle int64 `yaml:"credits_per_cycle"`
	// MaxRollover caps the subscription-pool balance a renewal grant may
	// top up to. Zero means no cap.
	MaxRollover int64 `yaml:"max_rollover"`
	// PriceIDs are the processor price ids that resolve to this plan
	// (typically monthly and annual).
	PriceIDs []string `yaml:"price_ids"`
}

// Catalog resolves plans by key or by processor price id.
type Catalog struct {
	byKey   map[string]Plan
	byPrice map[string]Plan
}

// CatalogSource defines how plans are loaded into the catalog.
type CatalogSource interface {
	Load(ctx context.Context) ([]Plan, error)
}

// NewCatalog validates the plan list and builds the lookup maps.
// Duplicate keys or price ids and non-positive allowances are
// configuration errors that must fail startup.
func NewCatalog(plans []Plan) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, errors.Join(ErrInvalidCatalog, errors.New("catalog has no plans"))
	}

	c := &Catalog{
		byKey:   make(map[string]Plan, len(plans)),
		byPrice: make(map[string]Plan),
	}

	for _, plan := range plans {
		if plan.Key == "" {
			return nil, errors.Join(ErrInvalidCatalog, errors.New("plan with empty key"))
		}
		if plan.CreditsPerCycle <= 0 {
			return nil, errors.Join(ErrInvalidCatalog,
				fmt.Errorf("plan %s has non-positive credits per cycle: %d", plan.Key, plan.CreditsPerCycle))
		}
		if _, dup := c.byKey[plan.Key]; dup {
			return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("duplicate plan key %s", plan.Key))
		}
		c.byKey[plan.Key] = plan

		for _, priceID := range plan.PriceIDs {
			if priceID == "" {
				return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("plan %s has empty price id", plan.Key))
			}
			if _, dup := c.byPrice[priceID]; dup {
				return nil, errors.Join(ErrInvalidCatalog, fmt.Errorf("price id %s mapped twice", priceID))
			}
			c.byPrice[priceID] = plan
		}
	}

	return c, nil
}

// NewCatalogFromSource loads and validates plans from a source.
func NewCatalogFromSource(ctx context.Context, src CatalogSource) (*Catalog, error) {
	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrInvalidCatalog, err)
	}
	return NewCatalog(plans)
}

// ByKey resolves a plan by its stable key.
func (c *Catalog) ByKey(key string) (Plan, error) {
	plan, ok := c.byKey[key]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return plan, nil
}

// ByPriceID resolves a plan by processor price id. An unrecognized
// price id is an error, never a silent default: callers grant credits
// based on the result.
func (c *Catalog) ByPriceID(priceID string) (Plan, error) {
	plan, ok := c.byPrice[priceID]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s", ErrUnknownPriceID, priceID)
	}
	return plan, nil
}

// Plans returns all catalog entries.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.byKey))
	for _, plan := range c.byKey {
		out = append(out, plan)
	}
	return out
}

// YAMLSource loads the plan catalog from a YAML document:
//
//	plans:
//	  - key: starter
//	    name: Starter
//	    credits_per_cycle: 200
//	    max_rollover: 400
//	    price_ids: [price_starter_monthly, price_starter_annual]
type YAMLSource struct {
	fsys fs.FS
	path string
}

// NewYAMLSource reads the catalog from path within fsys.
func NewYAMLSource(fsys fs.FS, path string) *YAMLSource {
	return &YAMLSource{fsys: fsys, path: path}
}

func (s *YAMLSource) Load(_ context.Context) ([]Plan, error) {
	raw, err := fs.ReadFile(s.fsys, s.path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}

	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	return doc.Plans, nil
}

// StaticSource serves a fixed plan list. Useful in tests.
type StaticSource []Plan

func (s StaticSource) Load(_ context.Context) ([]Plan, error) {
	return s, nil
}
