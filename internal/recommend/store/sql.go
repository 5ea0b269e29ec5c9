package store

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"manhwa-recommender/internal/recommend/query"
)

var sqlColumns = map[query.Field]string{
	query.FieldID:        "id",
	query.FieldGenres:    "genres",
	query.FieldTags:      "tags",
	query.FieldArtStyles: "art_styles",
	query.FieldIsActive:  "is_active",
	query.FieldViewCount: "view_count",
	query.FieldUpdatedAt: "updated_at",
	query.FieldRating:    "rating",
}

// sqlBuilder numbers placeholders as arguments are appended.
type sqlBuilder struct {
	args []interface{}
}

func (b *sqlBuilder) bind(v interface{}) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *sqlBuilder) predicate(f query.Filter) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	col, ok := sqlColumns[f.Field]
	if !ok {
		return "", fmt.Errorf("no column for field %q", f.Field)
	}
	kind, _ := f.Field.Kind()

	switch f.Op {
	case query.OpEq:
		return fmt.Sprintf("%s = %s", col, b.bind(f.Value)), nil
	case query.OpIn:
		if kind == query.KindArray {
			return fmt.Sprintf("%s && %s", col, b.bind(pq.Array(f.Values))), nil
		}
		return fmt.Sprintf("%s = ANY(%s)", col, b.bind(pq.Array(f.Values))), nil
	case query.OpNotIn:
		if kind == query.KindArray {
			return fmt.Sprintf("NOT (%s && %s)", col, b.bind(pq.Array(f.Values))), nil
		}
		return fmt.Sprintf("NOT (%s = ANY(%s))", col, b.bind(pq.Array(f.Values))), nil
	}
	return "", fmt.Errorf("unsupported operator %q", f.Op)
}

func (b *sqlBuilder) where(q query.Catalog) (string, error) {
	var clauses []string
	for _, f := range q.All {
		p, err := b.predicate(f)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, p)
	}

	if len(q.Any) > 0 {
		var alts []string
		for _, f := range q.Any {
			p, err := b.predicate(f)
			if err != nil {
				return "", err
			}
			alts = append(alts, p)
		}
		clauses = append(clauses, "("+strings.Join(alts, " OR ")+")")
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), nil
}

func (b *sqlBuilder) orderAndPage(q query.Catalog) (string, error) {
	var sb strings.Builder
	if len(q.Sort) > 0 {
		parts := make([]string, 0, len(q.Sort))
		for _, s := range q.Sort {
			col, ok := sqlColumns[s.Field]
			if !ok {
				return "", fmt.Errorf("no column for sort field %q", s.Field)
			}
			dir := "ASC"
			if s.Desc {
				dir = "DESC"
			}
			parts = append(parts, col+" "+dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}
	if q.Offset > 0 {
		sb.WriteString(" OFFSET " + b.bind(q.Offset))
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + b.bind(q.Limit))
	}
	return sb.String(), nil
}

// compileFind renders a catalog query as a SELECT over manhwaColumns.
func compileFind(q query.Catalog) (string, []interface{}, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	b := &sqlBuilder{}
	where, err := b.where(q)
	if err != nil {
		return "", nil, err
	}
	tail, err := b.orderAndPage(q)
	if err != nil {
		return "", nil, err
	}
	return "SELECT " + manhwaColumns + " FROM manhwas" + where + tail, b.args, nil
}

// compileCount ignores sort and paging.
func compileCount(q query.Catalog) (string, []interface{}, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	b := &sqlBuilder{}
	where, err := b.where(q)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM manhwas" + where, b.args, nil
}
