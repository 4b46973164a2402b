// Package reconcile keeps a pool's cached product attributes in step with
// the product they were copied from.
package reconcile

import (
	"github.com/smallbiznis/entitlepool/internal/pool/domain"
	productdomain "github.com/smallbiznis/entitlepool/internal/product/domain"
)

// Diff describes how a pool's cached attributes differ from a product's.
// Added, Updated and Removed never share a name.
type Diff struct {
	Added   []domain.ProductPoolAttribute
	Updated []domain.ProductPoolAttribute
	Removed []string
}

// Changed reports whether applying the diff would alter the cache.
func (d Diff) Changed() bool {
	return len(d.Added) > 0 || len(d.Updated) > 0 || len(d.Removed) > 0
}

// Compute diffs product's attributes against cached. A cached attribute is
// current only when both its value and its originating product match.
// A nil product has no attributes.
func Compute(product *productdomain.Product, cached []domain.ProductPoolAttribute) Diff {
	var diff Diff

	byName := make(map[string]domain.ProductPoolAttribute, len(cached))
	for _, attr := range cached {
		byName[attr.Name] = attr
	}

	for _, name := range product.AttributeNames() {
		value := product.Attributes[name]
		next := domain.ProductPoolAttribute{Name: name, Value: value, ProductID: product.ID}

		current, ok := byName[name]
		switch {
		case !ok:
			diff.Added = append(diff.Added, next)
		case current.ProductID != product.ID || current.Value != value:
			diff.Updated = append(diff.Updated, next)
		}
	}

	for _, attr := range cached {
		if _, ok := product.Attribute(attr.Name); !ok {
			diff.Removed = append(diff.Removed, attr.Name)
		}
	}

	return diff
}

// Apply returns a new attribute slice with diff applied to cached. Surviving
// entries keep their order, additions go last, and cached is not modified.
func Apply(cached []domain.ProductPoolAttribute, diff Diff) []domain.ProductPoolAttribute {
	removed := make(map[string]struct{}, len(diff.Removed))
	for _, name := range diff.Removed {
		removed[name] = struct{}{}
	}
	updated := make(map[string]domain.ProductPoolAttribute, len(diff.Updated))
	for _, attr := range diff.Updated {
		updated[attr.Name] = attr
	}

	out := make([]domain.ProductPoolAttribute, 0, len(cached)+len(diff.Added)-len(diff.Removed))
	for _, attr := range cached {
		if _, ok := removed[attr.Name]; ok {
			continue
		}
		if next, ok := updated[attr.Name]; ok {
			next.PoolID = attr.PoolID
			attr = next
		}
		out = append(out, attr)
	}
	for _, attr := range diff.Added {
		out = append(out, attr)
	}
	return out
}

// Reconcile makes pool's cached product attributes mirror product's and
// reports whether anything was added, updated or removed.
func Reconcile(product *productdomain.Product, pool *domain.Pool) bool {
	diff := Compute(product, pool.ProductAttributes)
	if !diff.Changed() {
		return false
	}
	next := Apply(pool.ProductAttributes, diff)
	for i := range next {
		next[i].PoolID = pool.ID
	}
	pool.ProductAttributes = next
	return true
}
