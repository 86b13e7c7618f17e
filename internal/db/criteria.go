package db

import (
	"context"

	"github.com/Tanth170203/EduXtend-sub002/internal/models"
)

func ListGroups(ctx context.Context, q Querier) ([]models.CriterionGroup, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, target_type, max_score FROM criterion_groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.CriterionGroup
	for rows.Next() {
		var g models.CriterionGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.TargetType, &g.MaxScore); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func ListCriteria(ctx context.Context, q Querier) ([]models.Criterion, error) {
	rows, err := q.QueryContext(ctx, `
SELECT id, group_id, title, min_score, max_score, target_type, weekly_capped, is_active
FROM criteria ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Criterion
	for rows.Next() {
		var c models.Criterion
		if err := rows.Scan(&c.ID, &c.GroupID, &c.Title, &c.MinScore, &c.MaxScore, &c.TargetType, &c.WeeklyCapped, &c.IsActive); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func ListMappings(ctx context.Context, q Querier) ([]models.CriterionMapping, error) {
	rows, err := q.QueryContext(ctx, `
SELECT id, signal_kind, signal_value, target_type, criterion_id
FROM criterion_mappings ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.CriterionMapping
	for rows.Next() {
		var m models.CriterionMapping
		if err := rows.Scan(&m.ID, &m.SignalKind, &m.SignalValue, &m.TargetType, &m.CriterionID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
