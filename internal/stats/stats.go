// Package stats runs the canned descriptive-statistics queries behind each
// dashboard widget. Every identifier is checked against the catalog before it
// is quoted into a query.
package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/amolpatilofficial/gdp-dashboard/internal/analyzer"
	"github.com/amolpatilofficial/gdp-dashboard/internal/connector"
	"github.com/amolpatilofficial/gdp-dashboard/pkg/models"
)

const (
	DefaultPreviewLimit = 100
	MaxPreviewLimit     = 10000
	DefaultTopValues    = 10
)

var (
	ErrNotNumeric       = errors.New("column is not numeric")
	ErrNotDateLike      = errors.New("column is not date-like")
	ErrNotEnoughColumns = errors.New("at least two numeric columns are required")
	ErrUnsupportedGrain = errors.New("unsupported time grain")
)

var supportedTimeGrains = []string{"day", "week", "month", "year"}

// Profiler runs statistic queries against one warehouse session
type Profiler struct {
	Analyzer *analyzer.SchemaAnalyzer
	Logger   *logrus.Logger
}

// NewProfiler creates a profiler backed by the analyzer's connection
func NewProfiler(sa *analyzer.SchemaAnalyzer, logger *logrus.Logger) *Profiler {
	return &Profiler{Analyzer: sa, Logger: logger}
}

func (p *Profiler) db() *connector.DatabaseConnector {
	return p.Analyzer.DB
}

func (p *Profiler) quote(name string) (string, error) {
	return p.db().Dialect.QuoteIdentifier(name)
}

// describe returns the table's columns and its quoted, qualified name
func (p *Profiler) describe(ctx context.Context, schema, table string) ([]models.Column, string, error) {
	schema, err := p.Analyzer.CheckSchema(schema)
	if err != nil {
		return nil, "", err
	}
	columns, err := p.Analyzer.DescribeTable(ctx, schema, table)
	if err != nil {
		return nil, "", err
	}
	name, err := p.db().Dialect.Qualified(schema, table)
	if err != nil {
		return nil, "", err
	}
	return columns, name, nil
}

func findColumn(columns []models.Column, name string) (models.Column, bool) {
	for _, col := range columns {
		if col.Name == name {
			return col, true
		}
	}
	return models.Column{}, false
}

func (p *Profiler) requireColumn(columns []models.Column, schema, table, name string, class models.ColumnClass) (string, error) {
	col, ok := findColumn(columns, name)
	if !ok {
		return "", fmt.Errorf("%w: %s.%s.%s", analyzer.ErrUnknownColumn, schema, table, name)
	}
	if class != 0 && !analyzer.ClassifyType(col.DataType).Has(class) {
		if class == models.ClassNumeric {
			return "", fmt.Errorf("%w: %s (%s)", ErrNotNumeric, name, col.DataType)
		}
		return "", fmt.Errorf("%w: %s (%s)", ErrNotDateLike, name, col.DataType)
	}
	return p.quote(name)
}

// Preview returns up to limit rows of a table or view
func (p *Profiler) Preview(ctx context.Context, schema, table string, limit int) (*models.ResultSet, error) {
	schema, err := p.Analyzer.CheckSchema(schema)
	if err != nil {
		return nil, err
	}
	if err := p.Analyzer.ResolveTable(ctx, schema, table); err != nil {
		return nil, err
	}
	name, err := p.db().Dialect.Qualified(schema, table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", name, clamp(limit, DefaultPreviewLimit, MaxPreviewLimit))
	rs, err := p.db().ExecuteQuery(ctx, query)
	if err != nil {
		p.Logger.Errorf("Failed to retrieve preview of %s: %v", name, err)
		return nil, err
	}
	if rs.Empty() {
		return nil, connector.NewEmptyResultError(query)
	}
	return rs, nil
}

// Profile returns descriptive statistics of a numeric column
func (p *Profiler) Profile(ctx context.Context, schema, table, column string) (*models.NumericProfile, error) {
	columns, name, err := p.describe(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	col, err := p.requireColumn(columns, schema, table, column, models.ClassNumeric)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT
			COUNT(*) AS total_rows,
			COUNT(%[1]s) AS non_null,
			COUNT(DISTINCT %[1]s) AS distinct_values,
			MIN(%[1]s) AS min_value,
			MAX(%[1]s) AS max_value,
			AVG(%[1]s) AS mean_value,
			STDDEV_SAMP(%[1]s) AS stddev_value
		FROM %[2]s
	`, col, name)

	rows, err := p.db().QueryMaps(ctx, query)
	if err != nil {
		p.Logger.Errorf("Failed to retrieve profile of column %s in %s: %v", column, name, err)
		return nil, err
	}
	if len(rows) == 0 {
		return nil, connector.NewEmptyResultError(query)
	}
	row := rows[0]

	total, err := connector.ToInt64(row["total_rows"])
	if err != nil {
		return nil, &connector.QueryError{Kind: connector.KindQuery, Query: query, Err: err}
	}
	if total == 0 {
		return nil, connector.NewEmptyResultError(query)
	}
	nonNull, _ := connector.ToInt64(row["non_null"])
	distinct, _ := connector.ToInt64(row["distinct_values"])

	return &models.NumericProfile{
		Column:   column,
		Count:    total,
		Nulls:    total - nonNull,
		Distinct: distinct,
		Min:      optionalFloat(row["min_value"]),
		Max:      optionalFloat(row["max_value"]),
		Mean:     optionalFloat(row["mean_value"]),
		StdDev:   optionalFloat(row["stddev_value"]),
	}, nil
}

// TopValues returns the most frequent values of a column
func (p *Profiler) TopValues(ctx context.Context, schema, table, column string, limit int) ([]models.ValueFrequency, error) {
	columns, name, err := p.describe(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	col, err := p.requireColumn(columns, schema, table, column, 0)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s AS value, COUNT(*) AS frequency
		FROM %s
		GROUP BY 1
		ORDER BY frequency DESC
		LIMIT %d
	`, col, name, clamp(limit, DefaultTopValues, MaxPreviewLimit))

	rs, err := p.db().ExecuteQuery(ctx, query)
	if err != nil {
		p.Logger.Errorf("Failed to retrieve value distribution of column %s in %s: %v", column, name, err)
		return nil, err
	}
	if rs.Empty() {
		return nil, connector.NewEmptyResultError(query)
	}

	values := make([]models.ValueFrequency, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		n, err := connector.ToInt64(row[1])
		if err != nil {
			return nil, &connector.QueryError{Kind: connector.KindQuery, Query: query, Err: err}
		}
		values = append(values, models.ValueFrequency{Value: row[0], Count: n})
	}
	return values, nil
}

// NullAudit counts NULLs in every column of a table with a single scan
func (p *Profiler) NullAudit(ctx context.Context, schema, table string) (*models.NullAudit, error) {
	columns, name, err := p.describe(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	selects := []string{"COUNT(*) AS total_rows"}
	for i, c := range columns {
		col, err := p.quote(c.Name)
		if err != nil {
			return nil, err
		}
		selects = append(selects, fmt.Sprintf("SUM(CASE WHEN %s IS NULL THEN 1 ELSE 0 END) AS n%d", col, i))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selects, ", "), name)

	rows, err := p.db().QueryMaps(ctx, query)
	if err != nil {
		p.Logger.Errorf("Failed to retrieve null counts for %s: %v", name, err)
		return nil, err
	}
	if len(rows) == 0 {
		return nil, connector.NewEmptyResultError(query)
	}
	total, err := connector.ToInt64(rows[0]["total_rows"])
	if err != nil {
		return nil, &connector.QueryError{Kind: connector.KindQuery, Query: query, Err: err}
	}
	if total == 0 {
		return nil, connector.NewEmptyResultError(query)
	}

	audit := &models.NullAudit{Table: table, TotalRows: total}
	for i, c := range columns {
		nulls, _ := connector.ToInt64(rows[0][fmt.Sprintf("n%d", i)])
		audit.Columns = append(audit.Columns, models.NullCount{
			Column:  c.Name,
			Nulls:   nulls,
			Percent: float64(nulls) / float64(total) * 100,
		})
	}
	return audit, nil
}

// TimeSeries buckets rows by a date-like column. When valueColumn is set each
// bucket also carries the sum of that numeric column.
func (p *Profiler) TimeSeries(ctx context.Context, schema, table, dateColumn, grain, valueColumn string) ([]models.TimeBucket, error) {
	grain = strings.ToLower(grain)
	if !validGrain(grain) {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedGrain, grain, strings.Join(supportedTimeGrains, ", "))
	}

	columns, name, err := p.describe(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	dateCol, err := p.requireColumn(columns, schema, table, dateColumn, models.ClassDateLike)
	if err != nil {
		return nil, err
	}
	period, err := p.db().Dialect.TruncateTime(grain, dateCol)
	if err != nil {
		return nil, err
	}

	selects := []string{period + " AS period", "COUNT(*) AS row_count"}
	if valueColumn != "" {
		valueCol, err := p.requireColumn(columns, schema, table, valueColumn, models.ClassNumeric)
		if err != nil {
			return nil, err
		}
		selects = append(selects, fmt.Sprintf("SUM(%s) AS total", valueCol))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s IS NOT NULL
		GROUP BY 1
		ORDER BY 1
	`, strings.Join(selects, ", "), name, dateCol)

	rs, err := p.db().ExecuteQuery(ctx, query)
	if err != nil {
		p.Logger.Errorf("Failed to retrieve %s time series of %s: %v", grain, name, err)
		return nil, err
	}
	if rs.Empty() {
		return nil, connector.NewEmptyResultError(query)
	}

	buckets := make([]models.TimeBucket, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		t, ok, err := connector.ToTime(row[0])
		if err != nil || !ok {
			return nil, &connector.QueryError{Kind: connector.KindQuery, Query: query, Err: fmt.Errorf("bad period value %v: %w", row[0], err)}
		}
		n, err := connector.ToInt64(row[1])
		if err != nil {
			return nil, &connector.QueryError{Kind: connector.KindQuery, Query: query, Err: err}
		}
		bucket := models.TimeBucket{Period: t, Count: n}
		if len(row) > 2 {
			bucket.Sum = optionalFloat(row[2])
		}
		buckets = append(buckets, bucket)
	}
	return buckets, nil
}

// Correlation computes the Pearson correlation matrix of numeric columns over
// rows where all of them are non-NULL. With no columns given, every numeric
// column of the table is used.
func (p *Profiler) Correlation(ctx context.Context, schema, table string, columnNames []string) (*models.CorrelationMatrix, error) {
	columns, name, err := p.describe(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if len(columnNames) == 0 {
		columnNames = analyzer.ClassifyColumns(columns).Numeric
	}
	if len(columnNames) < 2 {
		return nil, ErrNotEnoughColumns
	}

	quoted := make([]string, len(columnNames))
	for i, c := range columnNames {
		if quoted[i], err = p.requireColumn(columns, schema, table, c, models.ClassNumeric); err != nil {
			return nil, err
		}
	}

	selects := []string{"COUNT(*) AS n"}
	var filters []string
	for i, c := range quoted {
		selects = append(selects,
			fmt.Sprintf("SUM(%s * 1.0) AS s%d", c, i),
			fmt.Sprintf("SUM(%s * %s * 1.0) AS q%d", c, c, i))
		filters = append(filters, c+" IS NOT NULL")
		for j := i + 1; j < len(quoted); j++ {
			selects = append(selects, fmt.Sprintf("SUM(%s * %s * 1.0) AS p%d_%d", c, quoted[j], i, j))
		}
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(selects, ", "), name, strings.Join(filters, " AND "))

	rows, err := p.db().QueryMaps(ctx, query)
	if err != nil {
		p.Logger.Errorf("Failed to retrieve correlation sums for %s: %v", name, err)
		return nil, err
	}
	if len(rows) == 0 {
		return nil, connector.NewEmptyResultError(query)
	}
	row := rows[0]

	n, err := connector.ToInt64(row["n"])
	if err != nil {
		return nil, &connector.QueryError{Kind: connector.KindQuery, Query: query, Err: err}
	}
	if n == 0 {
		return nil, connector.NewEmptyResultError(query)
	}

	sum := func(key string) float64 {
		f, _, _ := connector.ToFloat64(row[key])
		return f
	}

	k := len(columnNames)
	matrix := &models.CorrelationMatrix{Columns: columnNames, Values: make([][]*float64, k)}
	for i := range matrix.Values {
		matrix.Values[i] = make([]*float64, k)
	}
	for i := 0; i < k; i++ {
		si, qi := sum(fmt.Sprintf("s%d", i)), sum(fmt.Sprintf("q%d", i))
		if r, ok := Pearson(float64(n), si, si, qi, qi, qi); ok {
			matrix.Values[i][i] = &r
		}
		for j := i + 1; j < k; j++ {
			sj, qj := sum(fmt.Sprintf("s%d", j)), sum(fmt.Sprintf("q%d", j))
			if r, ok := Pearson(float64(n), si, sj, qi, qj, sum(fmt.Sprintf("p%d_%d", i, j))); ok {
				r1, r2 := r, r
				matrix.Values[i][j] = &r1
				matrix.Values[j][i] = &r2
			}
		}
	}
	return matrix, nil
}

// Pearson computes the correlation coefficient from running sums. ok is false
// when either variable is constant or there are fewer than two rows.
func Pearson(n, sumX, sumY, sumXX, sumYY, sumXY float64) (float64, bool) {
	if n < 2 {
		return 0, false
	}
	varX := n*sumXX - sumX*sumX
	varY := n*sumYY - sumY*sumY
	if varX <= 0 || varY <= 0 {
		return 0, false
	}
	r := (n*sumXY - sumX*sumY) / math.Sqrt(varX*varY)
	// rounding can push |r| slightly past 1
	return math.Max(-1, math.Min(1, r)), true
}

func validGrain(grain string) bool {
	for _, g := range supportedTimeGrains {
		if g == grain {
			return true
		}
	}
	return false
}

func clamp(v, def, upper int) int {
	if v <= 0 {
		return def
	}
	if v > upper {
		return upper
	}
	return v
}

func optionalFloat(v interface{}) *float64 {
	f, ok, err := connector.ToFloat64(v)
	if err != nil || !ok {
		return nil
	}
	return &f
}
