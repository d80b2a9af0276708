package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/amolpatilofficial/gdp-dashboard/internal/connector"
	"github.com/amolpatilofficial/gdp-dashboard/pkg/models"
)

var (
	// ErrSchemaNotAllowed is returned for schemas outside the configured allow-list
	ErrSchemaNotAllowed = errors.New("schema not allowed")
	// ErrUnknownTable is returned for tables the catalog does not list
	ErrUnknownTable = errors.New("unknown table")
	// ErrUnknownColumn is returned for columns the table does not have
	ErrUnknownColumn = errors.New("unknown column")
)

// SchemaAnalyzer reads the warehouse catalog
type SchemaAnalyzer struct {
	DB             *connector.DatabaseConnector
	AllowedSchemas []string
	Logger         *logrus.Logger
}

// NewSchemaAnalyzer creates a new schema analyzer. An empty allow-list permits every schema.
func NewSchemaAnalyzer(db *connector.DatabaseConnector, allowedSchemas []string, logger *logrus.Logger) *SchemaAnalyzer {
	return &SchemaAnalyzer{
		DB:             db,
		AllowedSchemas: allowedSchemas,
		Logger:         logger,
	}
}

// CheckSchema validates schema against the identifier rules and the allow-list.
// The allow-list matches case-insensitively and its spelling is returned, since
// the catalog compares schema names exactly. Without an allow-list the name is
// returned as given.
func (sa *SchemaAnalyzer) CheckSchema(schema string) (string, error) {
	if !connector.ValidIdentifier(schema) {
		return "", fmt.Errorf("%w: %q", connector.ErrInvalidIdentifier, schema)
	}
	if len(sa.AllowedSchemas) == 0 {
		return schema, nil
	}
	for _, allowed := range sa.AllowedSchemas {
		if strings.EqualFold(allowed, schema) {
			return allowed, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSchemaNotAllowed, schema)
}

func (sa *SchemaAnalyzer) isMySQL() bool {
	return sa.DB.Dialect.Name == connector.MySQL.Name
}

// ListSchemas returns the schemas of the database, restricted to the allow-list
func (sa *SchemaAnalyzer) ListSchemas(ctx context.Context) ([]string, error) {
	query := `
		SELECT schema_name
		FROM information_schema.schemata
		ORDER BY schema_name
	`
	result, err := sa.DB.QueryMaps(ctx, query)
	if err != nil {
		sa.Logger.Errorf("Error getting schemas: %v", err)
		return nil, err
	}

	var schemas []string
	for _, row := range result {
		name := connector.ToString(row["schema_name"])
		if strings.EqualFold(name, "INFORMATION_SCHEMA") {
			continue
		}
		if _, err := sa.CheckSchema(name); err == nil {
			schemas = append(schemas, name)
		}
	}
	return schemas, nil
}

// ListTables returns the base tables of a schema ordered by name
func (sa *SchemaAnalyzer) ListTables(ctx context.Context, schema string) ([]string, error) {
	return sa.listByType(ctx, schema, "BASE TABLE")
}

// ListViews returns the views of a schema ordered by name
func (sa *SchemaAnalyzer) ListViews(ctx context.Context, schema string) ([]string, error) {
	return sa.listByType(ctx, schema, "VIEW")
}

func (sa *SchemaAnalyzer) listByType(ctx context.Context, schema, tableType string) ([]string, error) {
	schema, err := sa.CheckSchema(schema)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ?
		AND table_type = ?
		ORDER BY table_name
	`
	result, err := sa.DB.QueryMaps(ctx, query, schema, tableType)
	if err != nil {
		sa.Logger.Errorf("Error getting %s list for schema %s: %v", strings.ToLower(tableType), schema, err)
		return nil, err
	}

	names := make([]string, 0, len(result))
	for _, row := range result {
		names = append(names, connector.ToString(row["table_name"]))
	}
	return names, nil
}

// ResolveTable checks that table exists in schema. Only names that pass this
// check are ever interpolated into statistic queries.
func (sa *SchemaAnalyzer) ResolveTable(ctx context.Context, schema, table string) error {
	tables, err := sa.ListTables(ctx, schema)
	if err != nil {
		return err
	}
	views, err := sa.ListViews(ctx, schema)
	if err != nil {
		sa.Logger.Warningf("Failed to retrieve views for schema %s: %v", schema, err)
	}
	for _, name := range append(tables, views...) {
		if name == table {
			return nil
		}
	}
	return fmt.Errorf("%w: %s.%s", ErrUnknownTable, schema, table)
}

// DescribeTable returns the columns of a table in ordinal order
func (sa *SchemaAnalyzer) DescribeTable(ctx context.Context, schema, table string) ([]models.Column, error) {
	schema, err := sa.CheckSchema(schema)
	if err != nil {
		return nil, err
	}

	typeColumn, commentColumn := "data_type", "comment"
	if sa.isMySQL() {
		typeColumn, commentColumn = "column_type", "column_comment"
	}

	columnsQuery := fmt.Sprintf(`
		SELECT
			column_name,
			%s AS data_type,
			character_maximum_length,
			numeric_precision,
			numeric_scale,
			is_nullable,
			ordinal_position,
			%s AS column_comment
		FROM information_schema.columns
		WHERE table_schema = ?
		AND table_name = ?
		ORDER BY ordinal_position
	`, typeColumn, commentColumn)

	columnsResult, err := sa.DB.QueryMaps(ctx, columnsQuery, schema, table)
	if err != nil {
		sa.Logger.Errorf("Failed to retrieve columns for table %s.%s: %v", schema, table, err)
		return nil, err
	}
	if len(columnsResult) == 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownTable, schema, table)
	}

	columns := make([]models.Column, 0, len(columnsResult))
	for _, row := range columnsResult {
		position, _ := connector.ToInt64(row["ordinal_position"])
		columns = append(columns, models.Column{
			Name:             connector.ToString(row["column_name"]),
			DataType:         connector.ToString(row["data_type"]),
			CharMaxLength:    optionalInt(row["character_maximum_length"]),
			NumericPrecision: optionalInt(row["numeric_precision"]),
			NumericScale:     optionalInt(row["numeric_scale"]),
			IsNullable:       strings.EqualFold(connector.ToString(row["is_nullable"]), "YES"),
			Position:         int(position),
			Comment:          connector.ToString(row["column_comment"]),
		})
	}
	return columns, nil
}

// ClassifyTable describes a table and partitions its columns by type
func (sa *SchemaAnalyzer) ClassifyTable(ctx context.Context, schema, table string) (models.ColumnClasses, error) {
	columns, err := sa.DescribeTable(ctx, schema, table)
	if err != nil {
		return models.ColumnClasses{}, err
	}
	return ClassifyColumns(columns), nil
}

// TableSummaries reads row counts, sizes and timestamps of every table in one
// catalog query. Counts come from catalog statistics, not COUNT(*).
func (sa *SchemaAnalyzer) TableSummaries(ctx context.Context, schema string) ([]models.TableSummary, error) {
	schema, err := sa.CheckSchema(schema)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT
			table_name,
			table_type,
			row_count,
			bytes,
			created,
			last_altered
		FROM information_schema.tables
		WHERE table_schema = ?
		AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	if sa.isMySQL() {
		query = `
			SELECT
				table_name,
				table_type,
				table_rows AS row_count,
				data_length + index_length AS bytes,
				create_time AS created,
				update_time AS last_altered
			FROM information_schema.tables
			WHERE table_schema = ?
			AND table_type = 'BASE TABLE'
			ORDER BY table_name
		`
	}

	result, err := sa.DB.QueryMaps(ctx, query, schema)
	if err != nil {
		sa.Logger.Errorf("Error getting table metadata for schema %s: %v", schema, err)
		return nil, err
	}

	summaries := make([]models.TableSummary, 0, len(result))
	for _, row := range result {
		summary := models.TableSummary{
			Schema:    schema,
			Name:      connector.ToString(row["table_name"]),
			TableType: connector.ToString(row["table_type"]),
		}
		if n, err := connector.ToInt64(row["row_count"]); err == nil {
			summary.RowCount = n
		}
		if n, err := connector.ToInt64(row["bytes"]); err == nil {
			summary.SizeBytes = n
		}
		if t, ok, err := connector.ToTime(row["created"]); err == nil && ok {
			summary.CreatedAt = &t
		}
		if t, ok, err := connector.ToTime(row["last_altered"]); err == nil && ok {
			summary.LastAlteredAt = &t
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ForeignKeys returns the foreign keys declared in a schema
func (sa *SchemaAnalyzer) ForeignKeys(ctx context.Context, schema string) ([]models.ForeignKey, error) {
	schema, err := sa.CheckSchema(schema)
	if err != nil {
		return nil, err
	}

	var fkResult []map[string]interface{}
	if sa.isMySQL() {
		fkQuery := `
			SELECT
				table_name AS fk_table_name,
				column_name AS fk_column_name,
				referenced_table_name AS pk_table_name,
				referenced_column_name AS pk_column_name,
				constraint_name AS fk_name
			FROM information_schema.key_column_usage
			WHERE table_schema = ?
			AND referenced_table_name IS NOT NULL
			ORDER BY table_name, column_name
		`
		fkResult, err = sa.DB.QueryMaps(ctx, fkQuery, schema)
	} else {
		// Snowflake does not expose key columns in information_schema
		var name string
		name, err = sa.DB.Dialect.Qualified(sa.DB.Config.Database, schema)
		if err != nil {
			return nil, err
		}
		fkResult, err = sa.DB.QueryMaps(ctx, "SHOW IMPORTED KEYS IN SCHEMA "+name)
	}
	if err != nil {
		sa.Logger.Errorf("Error getting foreign keys for schema %s: %v", schema, err)
		return nil, err
	}

	fks := make([]models.ForeignKey, 0, len(fkResult))
	for _, row := range fkResult {
		fks = append(fks, models.ForeignKey{
			Table:            connector.ToString(row["fk_table_name"]),
			Column:           connector.ToString(row["fk_column_name"]),
			ReferencedTable:  connector.ToString(row["pk_table_name"]),
			ReferencedColumn: connector.ToString(row["pk_column_name"]),
			ConstraintName:   connector.ToString(row["fk_name"]),
		})
	}
	sort.SliceStable(fks, func(i, j int) bool {
		if fks[i].Table != fks[j].Table {
			return fks[i].Table < fks[j].Table
		}
		return fks[i].Column < fks[j].Column
	})
	return fks, nil
}

// Relationships reads tables and foreign keys of a schema and builds the relationship view
func (sa *SchemaAnalyzer) Relationships(ctx context.Context, schema string) (*models.Relationships, error) {
	schema, err := sa.CheckSchema(schema)
	if err != nil {
		return nil, err
	}
	tables, err := sa.ListTables(ctx, schema)
	if err != nil {
		return nil, err
	}
	fks, err := sa.ForeignKeys(ctx, schema)
	if err != nil {
		return nil, err
	}

	rel := BuildRelationships(tables, fks)
	rel.Schema = schema
	return rel, nil
}

func optionalInt(v interface{}) *int64 {
	if v == nil {
		return nil
	}
	n, err := connector.ToInt64(v)
	if err != nil {
		return nil
	}
	return &n
}
