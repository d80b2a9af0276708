package stats

import (
	"context"
	"errors"
	"io"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amolpatilofficial/gdp-dashboard/internal/analyzer"
	"github.com/amolpatilofficial/gdp-dashboard/internal/connector"
)

func newTestProfiler(t *testing.T) (*Profiler, sqlmock.Sqlmock) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dc := connector.NewFromDB(db, connector.Snowflake, logger)
	sa := analyzer.NewSchemaAnalyzer(dc, []string{"SALES"}, logger)
	return NewProfiler(sa, logger), mock
}

// expectColumns mocks the catalog lookup of ORDERS
func expectColumns(mock sqlmock.Sqlmock) {
	rows := sqlmock.NewRows([]string{
		"COLUMN_NAME", "DATA_TYPE", "CHARACTER_MAXIMUM_LENGTH", "NUMERIC_PRECISION",
		"NUMERIC_SCALE", "IS_NULLABLE", "ORDINAL_POSITION", "COLUMN_COMMENT",
	}).
		AddRow("ID", "NUMBER", nil, "38", "0", "NO", "1", nil).
		AddRow("AMOUNT", "FLOAT", nil, nil, nil, "YES", "2", nil).
		AddRow("STATUS", "TEXT", "16", nil, nil, "YES", "3", nil).
		AddRow("ORDERED_AT", "TIMESTAMP_NTZ", nil, nil, nil, "YES", "4", nil)
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("SALES", "ORDERS").WillReturnRows(rows)
}

func TestPreview(t *testing.T) {
	p, mock := newTestProfiler(t)

	mock.ExpectQuery("FROM information_schema.tables").WithArgs("SALES", "BASE TABLE").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("ORDERS"))
	mock.ExpectQuery("FROM information_schema.tables").WithArgs("SALES", "VIEW").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "SALES"."ORDERS" LIMIT 5`)).
		WillReturnRows(sqlmock.NewRows([]string{"ID", "STATUS"}).AddRow("1", "open").AddRow("2", "shipped"))

	rs, err := p.Preview(context.Background(), "SALES", "ORDERS", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "STATUS"}, rs.Columns)
	assert.Len(t, rs.Rows, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPreviewRejectsUnknownTable(t *testing.T) {
	p, mock := newTestProfiler(t)

	mock.ExpectQuery("FROM information_schema.tables").WithArgs("SALES", "BASE TABLE").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("ORDERS"))
	mock.ExpectQuery("FROM information_schema.tables").WithArgs("SALES", "VIEW").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}))

	_, err := p.Preview(context.Background(), "SALES", "SECRETS", 5)
	assert.ErrorIs(t, err, analyzer.ErrUnknownTable)

	_, err = p.Preview(context.Background(), "HR", "SALARIES", 5)
	assert.ErrorIs(t, err, analyzer.ErrSchemaNotAllowed)
}

func TestProfile(t *testing.T) {
	p, mock := newTestProfiler(t)
	expectColumns(mock)

	mock.ExpectQuery(regexp.QuoteMeta(`STDDEV_SAMP("AMOUNT") AS stddev_value`)).
		WillReturnRows(sqlmock.NewRows([]string{
			"TOTAL_ROWS", "NON_NULL", "DISTINCT_VALUES", "MIN_VALUE", "MAX_VALUE", "MEAN_VALUE", "STDDEV_VALUE",
		}).AddRow("10", "8", "6", "1.5", "99", "20.25", nil))

	profile, err := p.Profile(context.Background(), "SALES", "ORDERS", "AMOUNT")
	require.NoError(t, err)
	assert.Equal(t, int64(10), profile.Count)
	assert.Equal(t, int64(2), profile.Nulls)
	assert.Equal(t, int64(6), profile.Distinct)
	require.NotNil(t, profile.Min)
	assert.Equal(t, 1.5, *profile.Min)
	require.NotNil(t, profile.Mean)
	assert.Equal(t, 20.25, *profile.Mean)
	assert.Nil(t, profile.StdDev)
}

func TestProfileRejectsTextColumn(t *testing.T) {
	p, mock := newTestProfiler(t)
	expectColumns(mock)

	_, err := p.Profile(context.Background(), "SALES", "ORDERS", "STATUS")
	assert.ErrorIs(t, err, ErrNotNumeric)
}

func TestProfileEmptyTable(t *testing.T) {
	p, mock := newTestProfiler(t)
	expectColumns(mock)
	mock.ExpectQuery("total_rows").
		WillReturnRows(sqlmock.NewRows([]string{"TOTAL_ROWS", "NON_NULL"}).AddRow("0", "0"))

	_, err := p.Profile(context.Background(), "SALES", "ORDERS", "ID")
	assert.ErrorIs(t, err, connector.ErrEmptyResult)
	assert.True(t, connector.IsNoData(err))
}

func TestTopValues(t *testing.T) {
	p, mock := newTestProfiler(t)
	expectColumns(mock)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "STATUS" AS value`)).
		WillReturnRows(sqlmock.NewRows([]string{"VALUE", "FREQUENCY"}).
			AddRow("open", "7").
			AddRow(nil, "2"))

	values, err := p.TopValues(context.Background(), "SALES", "ORDERS", "STATUS", 0)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, "open", values[0].Value)
	assert.Equal(t, int64(7), values[0].Count)
	assert.Nil(t, values[1].Value)
}

func TestTopValuesUnknownColumn(t *testing.T) {
	p, mock := newTestProfiler(t)
	expectColumns(mock)

	_, err := p.TopValues(context.Background(), "SALES", "ORDERS", "status", 5)
	assert.ErrorIs(t, err, analyzer.ErrUnknownColumn)
}

func TestNullAudit(t *testing.T) {
	p, mock := newTestProfiler(t)
	expectColumns(mock)
	mock.ExpectQuery(regexp.QuoteMeta(`SUM(CASE WHEN "ID" IS NULL THEN 1 ELSE 0 END) AS n0`)).
		WillReturnRows(sqlmock.NewRows([]string{"TOTAL_ROWS", "N0", "N1", "N2", "N3"}).
			AddRow("20", "0", "5", "20", "1"))

	audit, err := p.NullAudit(context.Background(), "SALES", "ORDERS")
	require.NoError(t, err)
	assert.Equal(t, int64(20), audit.TotalRows)
	require.Len(t, audit.Columns, 4)
	assert.Equal(t, "AMOUNT", audit.Columns[1].Column)
	assert.Equal(t, int64(5), audit.Columns[1].Nulls)
	assert.InDelta(t, 25.0, audit.Columns[1].Percent, 1e-9)
	assert.InDelta(t, 100.0, audit.Columns[2].Percent, 1e-9)
}

func TestTimeSeries(t *testing.T) {
	p, mock := newTestProfiler(t)
	expectColumns(mock)

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`DATE_TRUNC('MONTH', "ORDERED_AT") AS period, COUNT(*) AS row_count, SUM("AMOUNT") AS total`)).
		WillReturnRows(sqlmock.NewRows([]string{"PERIOD", "ROW_COUNT", "TOTAL"}).
			AddRow(jan, "3", "30.5").
			AddRow(feb, "1", nil))

	buckets, err := p.TimeSeries(context.Background(), "SALES", "ORDERS", "ORDERED_AT", "Month", "AMOUNT")
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.True(t, buckets[0].Period.Equal(jan))
	assert.Equal(t, int64(3), buckets[0].Count)
	require.NotNil(t, buckets[0].Sum)
	assert.Equal(t, 30.5, *buckets[0].Sum)
	assert.Nil(t, buckets[1].Sum)
}

func TestTimeSeriesValidation(t *testing.T) {
	p, mock := newTestProfiler(t)

	_, err := p.TimeSeries(context.Background(), "SALES", "ORDERS", "ORDERED_AT", "hour", "")
	assert.ErrorIs(t, err, ErrUnsupportedGrain)

	expectColumns(mock)
	_, err = p.TimeSeries(context.Background(), "SALES", "ORDERS", "STATUS", "day", "")
	assert.ErrorIs(t, err, ErrNotDateLike)
}

func TestCorrelation(t *testing.T) {
	p, mock := newTestProfiler(t)
	expectColumns(mock)

	// ID = 1,2,3 and AMOUNT = 2,4,6: perfectly correlated
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE "ID" IS NOT NULL AND "AMOUNT" IS NOT NULL`)).
		WillReturnRows(sqlmock.NewRows([]string{"N", "S0", "Q0", "P0_1", "S1", "Q1"}).
			AddRow("3", "6", "14", "28", "12", "56"))

	matrix, err := p.Correlation(context.Background(), "SALES", "ORDERS", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "AMOUNT"}, matrix.Columns)
	require.NotNil(t, matrix.Values[0][1])
	assert.InDelta(t, 1.0, *matrix.Values[0][1], 1e-9)
	assert.InDelta(t, 1.0, *matrix.Values[1][0], 1e-9)
	assert.InDelta(t, 1.0, *matrix.Values[0][0], 1e-9)
}

func TestCorrelationNeedsTwoColumns(t *testing.T) {
	p, mock := newTestProfiler(t)
	expectColumns(mock)

	_, err := p.Correlation(context.Background(), "SALES", "ORDERS", []string{"AMOUNT"})
	assert.ErrorIs(t, err, ErrNotEnoughColumns)
}

func TestPearson(t *testing.T) {
	// x = 1,2,3 ; y = 3,2,1
	r, ok := Pearson(3, 6, 6, 14, 14, 10)
	require.True(t, ok)
	assert.InDelta(t, -1.0, r, 1e-9)

	// constant y
	_, ok = Pearson(3, 6, 9, 14, 27, 18)
	assert.False(t, ok)

	_, ok = Pearson(1, 1, 1, 1, 1, 1)
	assert.False(t, ok)

	r, ok = Pearson(4, 10, 10, 30, 30, 25)
	require.True(t, ok)
	assert.False(t, math.IsNaN(r))
}

func TestQueryFailureIsTyped(t *testing.T) {
	p, mock := newTestProfiler(t)
	expectColumns(mock)
	mock.ExpectQuery("total_rows").WillReturnError(errors.New("Warehouse 'COMPUTE_WH' cannot be resumed"))

	_, err := p.NullAudit(context.Background(), "SALES", "ORDERS")
	var qe *connector.QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, connector.KindQuery, qe.Kind)
}

func TestQueryFailureIsLogged(t *testing.T) {
	p, mock := newTestProfiler(t)
	p.Logger.SetOutput(io.Discard)
	p.Logger.SetLevel(logrus.ErrorLevel)
	hook := logrustest.NewLocal(p.Logger)

	expectColumns(mock)
	mock.ExpectQuery("row_count").WillReturnError(errors.New("SQL compilation error"))

	_, err := p.TimeSeries(context.Background(), "SALES", "ORDERS", "ORDERED_AT", "month", "")
	require.Error(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Contains(t, entry.Message, "Failed to retrieve month time series")
	assert.Contains(t, entry.Message, "SQL compilation error")
}

func TestSchemaSpellingFollowsAllowList(t *testing.T) {
	p, mock := newTestProfiler(t)
	expectColumns(mock)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "SALES"."ORDERS"`)).
		WillReturnRows(sqlmock.NewRows([]string{"TOTAL_ROWS", "NON_NULL", "DISTINCT_VALUES"}).AddRow("3", "3", "3"))

	profile, err := p.Profile(context.Background(), "sales", "ORDERS", "ID")
	require.NoError(t, err)
	assert.Equal(t, int64(3), profile.Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
