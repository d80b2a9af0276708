package models

import "time"

// Column represents a table column as reported by the warehouse catalog
type Column struct {
	Name             string
	DataType         string
	CharMaxLength    *int64
	NumericPrecision *int64
	NumericScale     *int64
	IsNullable       bool
	Position         int
	Comment          string
}

// ColumnClass is a set of lexical categories a column type belongs to
type ColumnClass int

const (
	ClassNumeric ColumnClass = 1 << iota
	ClassDateLike
	ClassOther
)

// Has reports whether c contains every bit of other
func (c ColumnClass) Has(other ColumnClass) bool {
	return c&other == other
}

func (c ColumnClass) String() string {
	switch {
	case c.Has(ClassNumeric) && c.Has(ClassDateLike):
		return "numeric,date"
	case c.Has(ClassNumeric):
		return "numeric"
	case c.Has(ClassDateLike):
		return "date"
	default:
		return "other"
	}
}

// ColumnClasses partitions the column names of one table
type ColumnClasses struct {
	Numeric  []string
	DateLike []string
	Other    []string
}

// TableSummary holds catalog-level facts about one table
type TableSummary struct {
	Schema        string
	Name          string
	TableType     string
	RowCount      int64
	SizeBytes     int64
	CreatedAt     *time.Time
	LastAlteredAt *time.Time
}

// SchemaSummary is the fold of all table summaries in a schema
type SchemaSummary struct {
	Schema       string
	TotalTables  int
	TotalRows    int64
	StorageBytes int64
}

// TableCount is a successful per-table row count
type TableCount struct {
	Table    string
	RowCount int64
}

// TableFailure records a table whose count could not be fetched
type TableFailure struct {
	Table string
	Err   error
}

// SchemaCountResult is the partial result of counting every table in a schema.
// Tables keeps the listing order; Succeeded and Failed follow that order.
type SchemaCountResult struct {
	Schema    string
	Tables    []string
	Succeeded []TableCount
	Failed    []TableFailure
}

// Summary folds the successful counts. Failed tables contribute zero rows but
// are still counted in TotalTables.
func (r *SchemaCountResult) Summary() SchemaSummary {
	summary := SchemaSummary{
		Schema:      r.Schema,
		TotalTables: len(r.Tables),
	}
	for _, c := range r.Succeeded {
		summary.TotalRows += c.RowCount
	}
	return summary
}

// Complete reports whether every table was counted
func (r *SchemaCountResult) Complete() bool {
	return len(r.Failed) == 0
}

// FailedTables returns the names of the tables whose count failed
func (r *SchemaCountResult) FailedTables() []string {
	names := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		names = append(names, f.Table)
	}
	return names
}

// ForeignKey represents a foreign key relationship
type ForeignKey struct {
	Table            string
	Column           string
	ReferencedTable  string
	ReferencedColumn string
	ConstraintName   string
}

// Relationships describes how the tables of a schema reference each other
type Relationships struct {
	Schema      string
	Tables      []string
	ForeignKeys []ForeignKey
	// Clusters groups tables connected by any foreign key, ignoring direction
	Clusters [][]string
	// Cycles lists groups of tables that reference each other circularly
	Cycles [][]string
	// Order lists referenced tables before the tables that reference them
	Order []string
}

// ResultSet is an ordered, rectangular query result
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Empty reports whether the result has no rows
func (rs *ResultSet) Empty() bool {
	return rs == nil || len(rs.Rows) == 0
}

// NumericProfile holds descriptive statistics for a single column
type NumericProfile struct {
	Column   string
	Count    int64
	Nulls    int64
	Distinct int64
	Min      *float64
	Max      *float64
	Mean     *float64
	StdDev   *float64
}

// ValueFrequency is one bar of a value distribution
type ValueFrequency struct {
	Value any
	Count int64
}

// NullCount holds the null audit of one column
type NullCount struct {
	Column  string
	Nulls   int64
	Percent float64
}

// NullAudit holds the null audit of a table
type NullAudit struct {
	Table     string
	TotalRows int64
	Columns   []NullCount
}

// TimeBucket is one point of a time-series aggregate
type TimeBucket struct {
	Period time.Time
	Count  int64
	Sum    *float64
}

// CorrelationMatrix holds pairwise Pearson coefficients. Values[i][j] is nil
// when the coefficient is undefined (constant column or too few rows).
type CorrelationMatrix struct {
	Columns []string
	Values  [][]*float64
}
