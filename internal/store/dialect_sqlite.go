package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

func (d *SQLiteDialect) NowExpr() string     { return "datetime('now')" }
func (d *SQLiteDialect) UUIDDefault() string { return "" }
func (d *SQLiteDialect) NeedsBoolFix() bool  { return true }

func (d *SQLiteDialect) ColumnType(fieldType string) string {
	switch fieldType {
	case "string", "text":
		return "TEXT"
	case "int", "integer", "bigint":
		return "INTEGER"
	case "float", "decimal":
		return "REAL"
	case "boolean":
		return "INTEGER"
	case "uuid":
		return "TEXT"
	case "timestamp", "date":
		return "TEXT"
	case "geometry":
		return "TEXT"
	case "binary":
		return "BLOB"
	case "json":
		return "TEXT"
	default:
		return "TEXT"
	}
}

func (d *SQLiteDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = pb.Add(v)
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(placeholders, ", "))
}

func (d *SQLiteDialect) ILike(field string, pb ParamBuilder, pattern string) string {
	return fmt.Sprintf("LOWER(%s) LIKE %s", field, pb.Add(strings.ToLower(pattern)))
}

func (d *SQLiteDialect) LimitOffset(limit, offset int) string {
	var clause string
	if limit != -1 {
		clause = fmt.Sprintf(" LIMIT %d", limit)
	} else if offset > 0 {
		// SQLite has no OFFSET without LIMIT
		clause = " LIMIT -1"
	}
	if offset > 0 {
		clause += fmt.Sprintf(" OFFSET %d", offset)
	}
	return clause
}

func (d *SQLiteDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?1",
		tableName).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrUniqueViolation, err)
	}
	return err
}
