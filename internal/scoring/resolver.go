package scoring

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Tanth170203/EduXtend-sub002/internal/db"
	"github.com/Tanth170203/EduXtend-sub002/internal/models"
)

type mappingKey struct {
	target models.TargetType
	kind   models.SignalKind
	value  string
}

// Catalog is the in-memory criterion reference data plus the data-driven
// signal→criterion lookup. The catalog is admin-curated and effectively
// immutable at runtime, so it is loaded and validated once at startup.
type Catalog struct {
	groups   map[int64]models.CriterionGroup
	criteria map[int64]models.Criterion
	mappings map[mappingKey]int64
}

func LoadCatalog(ctx context.Context, database *sql.DB) (*Catalog, error) {
	groups, err := db.ListGroups(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}
	criteria, err := db.ListCriteria(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("load criteria: %w", err)
	}
	mappings, err := db.ListMappings(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("load mappings: %w", err)
	}
	return NewCatalog(groups, criteria, mappings)
}

// NewCatalog builds and validates the catalog. Validation rejects mappings to
// unknown criteria and criteria whose target type disagrees with their group,
// so a miswired lookup table fails at startup instead of mis-scoring later.
func NewCatalog(groups []models.CriterionGroup, criteria []models.Criterion, mappings []models.CriterionMapping) (*Catalog, error) {
	c := &Catalog{
		groups:   make(map[int64]models.CriterionGroup, len(groups)),
		criteria: make(map[int64]models.Criterion, len(criteria)),
		mappings: make(map[mappingKey]int64, len(mappings)),
	}
	for _, g := range groups {
		c.groups[g.ID] = g
	}
	for _, cr := range criteria {
		g, ok := c.groups[cr.GroupID]
		if !ok {
			return nil, fmt.Errorf("criterion %d: unknown group %d", cr.ID, cr.GroupID)
		}
		if cr.TargetType != g.TargetType {
			return nil, fmt.Errorf("criterion %d: target %q differs from group %q target %q", cr.ID, cr.TargetType, g.Name, g.TargetType)
		}
		c.criteria[cr.ID] = cr
	}
	for _, m := range mappings {
		cr, ok := c.criteria[m.CriterionID]
		if !ok {
			return nil, fmt.Errorf("mapping %d: unknown criterion %d", m.ID, m.CriterionID)
		}
		if cr.TargetType != m.TargetType {
			return nil, fmt.Errorf("mapping %d: target %q differs from criterion %d target %q", m.ID, m.TargetType, cr.ID, cr.TargetType)
		}
		c.mappings[mappingKey{m.TargetType, m.SignalKind, m.SignalValue}] = m.CriterionID
	}
	return c, nil
}

// ResolveCriterion maps a signal to the one active criterion for the target
// type. A missing mapping or an inactive criterion is ErrNotFound; callers on
// batch paths treat that as "award zero, continue".
func (c *Catalog) ResolveCriterion(target models.TargetType, kind models.SignalKind, value string) (models.Criterion, error) {
	id, ok := c.mappings[mappingKey{target, kind, value}]
	if !ok {
		return models.Criterion{}, fmt.Errorf("criterion for %s %s %q: %w", target, kind, value, ErrNotFound)
	}
	cr := c.criteria[id]
	if !cr.IsActive {
		return models.Criterion{}, fmt.Errorf("criterion %d inactive: %w", id, ErrNotFound)
	}
	return cr, nil
}

func (c *Catalog) Criterion(id int64) (models.Criterion, error) {
	cr, ok := c.criteria[id]
	if !ok {
		return models.Criterion{}, fmt.Errorf("criterion %d: %w", id, ErrNotFound)
	}
	return cr, nil
}

func (c *Catalog) Group(id int64) (models.CriterionGroup, error) {
	g, ok := c.groups[id]
	if !ok {
		return models.CriterionGroup{}, fmt.Errorf("criterion group %d: %w", id, ErrNotFound)
	}
	return g, nil
}
