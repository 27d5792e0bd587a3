package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/scholar-admissions-api/internal/models"
)

var (
	scholarColumnList = strings.Join(models.ScholarColumns, ", ")
	scholarColumnSet  = func() map[string]bool {
		set := make(map[string]bool, len(models.ScholarColumns))
		for _, c := range models.ScholarColumns {
			set[c] = true
		}
		return set
	}()
	immutableColumns = map[string]bool{"id": true, "created_at": true, "updated_at": true}
)

// ScholarRepository persists scholar records in one of the scholar tables.
type ScholarRepository struct {
	db    *sqlx.DB
	table models.ScholarTable
}

// NewScholarRepository constructs a repository bound to table.
func NewScholarRepository(db *sqlx.DB, table models.ScholarTable) *ScholarRepository {
	return &ScholarRepository{db: db, table: table}
}

// Table returns the bound table.
func (r *ScholarRepository) Table() models.ScholarTable {
	return r.table
}

// Select returns rows matching filter.
func (r *ScholarRepository) Select(ctx context.Context, filter models.ScholarFilter) ([]models.Scholar, error) {
	args := make([]interface{}, 0, 8)
	where, err := buildScholarWhere(filter, &args)
	if err != nil {
		return nil, err
	}
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("SELECT %s FROM %s", scholarColumnList, r.table))
	if where != "" {
		builder.WriteString(" WHERE ")
		builder.WriteString(where)
	}
	order := "created_at ASC, id ASC"
	if filter.OrderBy != "" {
		column, dir := parseOrder(filter.OrderBy)
		if !scholarColumnSet[column] {
			return nil, fmt.Errorf("select %s: unknown order column %q", r.table, column)
		}
		order = fmt.Sprintf("%s %s", column, dir)
	}
	builder.WriteString(" ORDER BY ")
	builder.WriteString(order)
	if filter.Limit > 0 {
		builder.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
	}

	var rows []models.Scholar
	if err := r.db.SelectContext(ctx, &rows, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("select %s: %w", r.table, err)
	}
	return rows, nil
}

// FindByID returns one record; sql.ErrNoRows is returned as-is.
func (r *ScholarRepository) FindByID(ctx context.Context, id string) (*models.Scholar, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", scholarColumnList, r.table)
	var rec models.Scholar
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find %s by id: %w", r.table, err)
	}
	return &rec, nil
}

// FindByIDs returns the records present among ids.
func (r *ScholarRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Scholar, error) {
	if len(ids) == 0 {
		return []models.Scholar{}, nil
	}
	values := make([]interface{}, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	return r.Select(ctx, models.ScholarFilter{All: []models.Condition{models.In("id", values...)}})
}

// Update applies patch to one record and returns the stored row.
func (r *ScholarRepository) Update(ctx context.Context, id string, patch models.ScholarPatch) (*models.Scholar, error) {
	args := make([]interface{}, 0, len(patch)+2)
	set, err := buildScholarSet(patch, &args)
	if err != nil {
		return nil, err
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING %s", r.table, set, len(args), scholarColumnList)
	var rec models.Scholar
	if err := r.db.GetContext(ctx, &rec, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update %s: %w", r.table, err)
	}
	return &rec, nil
}

// UpdateMany applies the same patch to every id and returns the stored rows.
func (r *ScholarRepository) UpdateMany(ctx context.Context, ids []string, patch models.ScholarPatch) ([]models.Scholar, error) {
	if len(ids) == 0 {
		return []models.Scholar{}, nil
	}
	args := make([]interface{}, 0, len(patch)+len(ids)+1)
	set, err := buildScholarSet(patch, &args)
	if err != nil {
		return nil, err
	}
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id IN (%s) RETURNING %s",
		r.table, set, strings.Join(placeholders, ","), scholarColumnList)
	var rows []models.Scholar
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("update many %s: %w", r.table, err)
	}
	return rows, nil
}

// Insert stores rows in one transaction and returns them as stored.
func (r *ScholarRepository) Insert(ctx context.Context, rows []models.Scholar) ([]models.Scholar, error) {
	if len(rows) == 0 {
		return []models.Scholar{}, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert %s: %w", r.table, err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback()
		}
	}()

	placeholders := make([]string, len(models.ScholarColumns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		r.table, scholarColumnList, strings.Join(placeholders, ", "), scholarColumnList)

	now := time.Now().UTC()
	stored := make([]models.Scholar, 0, len(rows))
	for i := range rows {
		rec := rows[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		rec.DeptReview = rec.DeptReview.Normalize()
		var out models.Scholar
		if err := tx.QueryRowxContext(ctx, query, scholarArgs(&rec)...).StructScan(&out); err != nil {
			return nil, fmt.Errorf("insert %s row %d: %w", r.table, i+1, err)
		}
		stored = append(stored, out)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert %s: %w", r.table, err)
	}
	commit = true
	return stored, nil
}

// Delete removes rows matching filter and returns them. An empty filter is refused.
func (r *ScholarRepository) Delete(ctx context.Context, filter models.ScholarFilter) ([]models.Scholar, error) {
	if filter.Empty() {
		return nil, fmt.Errorf("delete %s: refusing unfiltered delete", r.table)
	}
	args := make([]interface{}, 0, 8)
	where, err := buildScholarWhere(filter, &args)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s RETURNING %s", r.table, where, scholarColumnList)
	var rows []models.Scholar
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("delete %s: %w", r.table, err)
	}
	return rows, nil
}

func scholarArgs(rec *models.Scholar) []interface{} {
	return []interface{}{
		rec.ID, rec.ApplicationNo, rec.Name, rec.Faculty, rec.Institution, rec.Department, rec.Program, rec.ProgramType,
		rec.Status, rec.FacultyStatus, rec.DeptReview, rec.DeptStatus, rec.DeptQuery, rec.QueryTimestamp,
		rec.RejectReason, rec.FacultyForward, rec.WrittenMarks100, rec.WrittenMarks, rec.InterviewMarks,
		rec.TotalMarks, rec.FacultyWritten, rec.DirectorInterview, rec.FacultyInterview, rec.Panel,
		rec.Examiner1, rec.Examiner2, rec.Examiner3, rec.ResultDir, rec.CreatedAt, rec.UpdatedAt,
	}
}

func buildScholarSet(patch models.ScholarPatch, args *[]interface{}) (string, error) {
	if len(patch) == 0 {
		return "", fmt.Errorf("update: empty patch")
	}
	columns := make([]string, 0, len(patch))
	for column := range patch {
		if !scholarColumnSet[column] || immutableColumns[column] {
			return "", fmt.Errorf("update: column %q is not writable", column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)
	set := make([]string, 0, len(columns)+1)
	for _, column := range columns {
		*args = append(*args, patch[column])
		set = append(set, fmt.Sprintf("%s = $%d", column, len(*args)))
	}
	*args = append(*args, time.Now().UTC())
	set = append(set, fmt.Sprintf("updated_at = $%d", len(*args)))
	return strings.Join(set, ", "), nil
}

func buildScholarWhere(filter models.ScholarFilter, args *[]interface{}) (string, error) {
	clauses := make([]string, 0, len(filter.All)+1)
	for _, cond := range filter.All {
		clause, err := buildCondition(cond, args)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	if len(filter.AnyOf) > 0 {
		groups := make([]string, 0, len(filter.AnyOf))
		for _, group := range filter.AnyOf {
			if len(group) == 0 {
				continue
			}
			parts := make([]string, 0, len(group))
			for _, cond := range group {
				clause, err := buildCondition(cond, args)
				if err != nil {
					return "", err
				}
				parts = append(parts, clause)
			}
			groups = append(groups, "("+strings.Join(parts, " AND ")+")")
		}
		if len(groups) > 0 {
			clauses = append(clauses, "("+strings.Join(groups, " OR ")+")")
		}
	}
	return strings.Join(clauses, " AND "), nil
}

func buildCondition(cond models.Condition, args *[]interface{}) (string, error) {
	if !scholarColumnSet[cond.Column] {
		return "", fmt.Errorf("filter: unknown column %q", cond.Column)
	}
	switch cond.Op {
	case models.OpEq:
		if len(cond.Values) != 1 {
			return "", fmt.Errorf("filter: %s eq needs one value", cond.Column)
		}
		*args = append(*args, cond.Values[0])
		return fmt.Sprintf("%s = $%d", cond.Column, len(*args)), nil
	case models.OpIn:
		if len(cond.Values) == 0 {
			return "FALSE", nil
		}
		placeholders := make([]string, len(cond.Values))
		for i, v := range cond.Values {
			*args = append(*args, v)
			placeholders[i] = fmt.Sprintf("$%d", len(*args))
		}
		return fmt.Sprintf("%s IN (%s)", cond.Column, strings.Join(placeholders, ",")), nil
	case models.OpILike:
		if len(cond.Values) != 1 {
			return "", fmt.Errorf("filter: %s ilike needs one pattern", cond.Column)
		}
		*args = append(*args, cond.Values[0])
		return fmt.Sprintf("%s ILIKE $%d", cond.Column, len(*args)), nil
	case models.OpIsNull:
		return fmt.Sprintf("%s IS NULL", cond.Column), nil
	default:
		return "", fmt.Errorf("filter: unsupported operator %q", cond.Op)
	}
}

func parseOrder(raw string) (string, string) {
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return "", "ASC"
	}
	dir := "ASC"
	if len(parts) > 1 && strings.EqualFold(parts[1], "desc") {
		dir = "DESC"
	}
	return parts[0], dir
}
