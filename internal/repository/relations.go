package repository

import (
	"context"

	"github.com/ohwonsuk/lockmoment-sub001/internal/model"
)

// CreateRelation inserts a parent->child edge. Duplicate edges are ignored;
// redeeming the same link token twice must not duplicate rows.
func (q *Queries) CreateRelation(ctx context.Context, rel model.ParentChildRelation) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO parent_child_relations (parent_id, child_id, nickname, is_primary, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (parent_id, child_id) DO NOTHING
	`, rel.ParentID, rel.ChildID, rel.Nickname, rel.IsPrimary, rel.CreatedAt)
	return err
}

// GetRelationByNickname is the idempotent-linking lookup: the same
// (parent, nickname) pair always resolves to the same child principal.
func (q *Queries) GetRelationByNickname(ctx context.Context, parentID, nickname string) (model.ParentChildRelation, error) {
	var rel model.ParentChildRelation
	row := q.db.QueryRow(ctx, `
		SELECT parent_id, child_id, nickname, is_primary, created_at
		FROM parent_child_relations
		WHERE parent_id = $1 AND nickname = $2
	`, parentID, nickname)
	err := row.Scan(&rel.ParentID, &rel.ChildID, &rel.Nickname, &rel.IsPrimary, &rel.CreatedAt)
	return rel, err
}

func (q *Queries) ListRelationsByParent(ctx context.Context, parentID string) ([]model.ParentChildRelation, error) {
	rows, err := q.db.Query(ctx, `
		SELECT parent_id, child_id, nickname, is_primary, created_at
		FROM parent_child_relations
		WHERE parent_id = $1
		ORDER BY created_at
	`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var relations []model.ParentChildRelation
	for rows.Next() {
		var rel model.ParentChildRelation
		if err := rows.Scan(&rel.ParentID, &rel.ChildID, &rel.Nickname, &rel.IsPrimary, &rel.CreatedAt); err != nil {
			return nil, err
		}
		relations = append(relations, rel)
	}
	return relations, rows.Err()
}
