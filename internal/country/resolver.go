// Package country maps free-text category strings to country identifiers.
package country

import (
	"context"
	"fmt"
	"strings"

	"github.com/maxstewm/asian-guide-web/internal/domain"
)

// Lister reads the country reference table.
type Lister interface {
	List(ctx context.Context) ([]domain.Country, error)
}

// legacyAliases maps historical category strings to current slugs.
var legacyAliases = map[string]string{
	"south korea": "south-korea",
	"korea":       "south-korea",
}

// Resolver is an immutable lookup table built once per run.
type Resolver struct {
	byKey map[string]int64
	size  int
}

// Load reads every country with a single query.
func Load(ctx context.Context, lister Lister) (*Resolver, error) {
	countries, err := lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	return NewResolver(countries), nil
}

func NewResolver(countries []domain.Country) *Resolver {
	r := &Resolver{
		byKey: make(map[string]int64, len(countries)*2),
		size:  len(countries),
	}
	for _, c := range countries {
		if c.Name != "" {
			r.byKey[key(c.Name)] = c.ID
		}
		if c.Slug != "" {
			r.byKey[key(c.Slug)] = c.ID
		}
	}
	return r
}

// Resolve matches nameOrSlug case-insensitively against display names, slugs
// and legacy aliases. The boolean is false when nothing matches.
func (r *Resolver) Resolve(nameOrSlug string) (int64, bool) {
	k := key(nameOrSlug)
	if k == "" {
		return 0, false
	}
	if alias, ok := legacyAliases[k]; ok {
		if id, ok := r.byKey[alias]; ok {
			return id, true
		}
	}
	id, ok := r.byKey[k]
	return id, ok
}

// Len returns the number of countries loaded.
func (r *Resolver) Len() int {
	return r.size
}

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
