package connector

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/snowflakedb/gosnowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create a test logger
func createTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress log output during tests
	return logger
}

func TestNewDatabaseConnector(t *testing.T) {
	t.Setenv("WAREHOUSE_DRIVER", "")
	t.Setenv("SNOWFLAKE_ACCOUNT", "test-account")
	t.Setenv("SNOWFLAKE_USER", "test-user")
	t.Setenv("SNOWFLAKE_PASSWORD", "test-password")
	t.Setenv("SNOWFLAKE_WAREHOUSE", "test-wh")
	t.Setenv("SNOWFLAKE_DATABASE", "test-database")

	db, err := NewDatabaseConnector(Config{}, createTestLogger())
	require.NoError(t, err)

	assert.Equal(t, Snowflake, db.Dialect)
	assert.Equal(t, "test-account", db.Config.Account)
	assert.Equal(t, "test-user", db.Config.User)
	assert.Equal(t, "test-password", db.Config.Password)
	assert.Equal(t, "test-wh", db.Config.Warehouse)
	assert.Equal(t, "test-database", db.Config.Database)
	assert.Equal(t, 30*time.Second, db.Config.LoginTimeout)

	// Explicit parameters win over the environment
	db, err = NewDatabaseConnector(Config{
		Account:   "explicit-account",
		User:      "explicit-user",
		Password:  "explicit-password",
		Warehouse: "explicit-wh",
		Database:  "explicit-database",
	}, createTestLogger())
	require.NoError(t, err)

	assert.Equal(t, "explicit-account", db.Config.Account)
	assert.Equal(t, "explicit-user", db.Config.User)
	assert.Equal(t, "explicit-password", db.Config.Password)
	assert.Equal(t, "explicit-wh", db.Config.Warehouse)
	assert.Equal(t, "explicit-database", db.Config.Database)
}

func TestNewDatabaseConnectorMySQL(t *testing.T) {
	t.Setenv("MYSQL_HOST", "test-host")
	t.Setenv("MYSQL_PORT", "3307")
	t.Setenv("MYSQL_DATABASE", "test-database")

	db, err := NewDatabaseConnector(Config{Driver: "MySQL"}, createTestLogger())
	require.NoError(t, err)

	assert.Equal(t, MySQL, db.Dialect)
	assert.Equal(t, "mysql", db.Config.Driver)
	assert.Equal(t, "test-host", db.Config.Host)
	assert.Equal(t, "3307", db.Config.Port)
	assert.Equal(t, "test-database", db.Config.Database)
}

func TestNewDatabaseConnectorUnsupportedDriver(t *testing.T) {
	_, err := NewDatabaseConnector(Config{Driver: "oracle"}, createTestLogger())
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	logger := createTestLogger()

	my, err := NewDatabaseConnector(Config{
		Driver: "mysql", Host: "db.local", Port: "3307", User: "u", Password: "p", Database: "shop",
	}, logger)
	require.NoError(t, err)
	dsn, err := my.DSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "tcp(db.local:3307)/shop")
	assert.Contains(t, dsn, "parseTime=true")

	sf, err := NewDatabaseConnector(Config{
		Account: "acme", User: "u", Password: "p", Warehouse: "COMPUTE_WH", Database: "ANALYTICS",
	}, logger)
	require.NoError(t, err)
	dsn, err = sf.DSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "acme")

	sf.Config.Database = ""
	_, err = sf.DSN()
	assert.Error(t, err)
}

// newMockConnector returns a connector whose Opener hands out the given
// handles in order and counts the calls.
func newMockConnector(t *testing.T, handles ...*sql.DB) (*DatabaseConnector, *int) {
	t.Helper()
	dc, err := NewDatabaseConnector(Config{Driver: "mysql", Database: "test"}, createTestLogger())
	require.NoError(t, err)

	calls := 0
	dc.Opener = func(driverName, dsn string) (*sql.DB, error) {
		if calls >= len(handles) {
			return nil, errors.New("no more handles")
		}
		db := handles[calls]
		calls++
		return db, nil
	}
	return dc, &calls
}

func TestHandleReturnsSameHandle(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dc, calls := newMockConnector(t, db)
	ctx := context.Background()

	first, err := dc.Handle(ctx)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		h, err := dc.Handle(ctx)
		require.NoError(t, err)
		assert.Same(t, first, h)
	}
	assert.Equal(t, 1, *calls)
}

func TestHandleReconnectsAfterDroppedConnection(t *testing.T) {
	db1, mock1, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock1.ExpectPing()
	mock1.ExpectPing().WillReturnError(errors.New("connection reset by peer"))
	mock1.ExpectClose()

	db2, mock2, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db2.Close()
	mock2.ExpectPing()

	dc, calls := newMockConnector(t, db1, db2)
	dc.HealthCheckInterval = 0
	ctx := context.Background()

	first, err := dc.Handle(ctx)
	require.NoError(t, err)
	assert.Same(t, db1, first)

	second, err := dc.Handle(ctx)
	require.NoError(t, err)
	assert.Same(t, db2, second)
	assert.Equal(t, 2, *calls)

	assert.NoError(t, mock1.ExpectationsWereMet())
	assert.NoError(t, mock2.ExpectationsWereMet())
}

func TestVerify(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))

	dc := NewFromDB(db, Snowflake, createTestLogger())
	assert.False(t, dc.Verified())

	require.NoError(t, dc.Verify(context.Background()))
	assert.True(t, dc.Verified())

	// A failing probe clears the flag again
	mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("warehouse suspended"))
	err = dc.Verify(context.Background())
	assert.ErrorIs(t, err, ErrQuery)
	assert.False(t, dc.Verified())
}

func TestVerifyPingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing().WillReturnError(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("no route to host")})
	mock.ExpectClose()

	dc, _ := newMockConnector(t, db)
	err = dc.Verify(context.Background())

	assert.ErrorIs(t, err, ErrConnectivity)
	assert.False(t, dc.Verified())
}

func TestVerifyUnreachableHost(t *testing.T) {
	dc, err := NewDatabaseConnector(Config{
		Driver:       "mysql",
		Host:         "127.0.0.1",
		Port:         "1",
		User:         "nobody",
		Database:     "missing",
		LoginTimeout: time.Second,
	}, createTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = dc.Verify(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectivity)
	assert.False(t, dc.Verified())

	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, KindConnectivity, qe.Kind)
}

func TestExecuteQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"NAME", "TOTAL"}).
		AddRow([]byte("orders"), int64(42)).
		AddRow("customers", nil)
	mock.ExpectQuery("SELECT name, total FROM stats").WillReturnRows(rows)

	dc := NewFromDB(db, Snowflake, createTestLogger())
	rs, err := dc.ExecuteQuery(context.Background(), "SELECT name, total FROM stats")
	require.NoError(t, err)

	assert.Equal(t, []string{"NAME", "TOTAL"}, rs.Columns)
	require.Len(t, rs.Rows, 2)
	assert.Equal(t, "orders", rs.Rows[0][0])
	assert.Equal(t, int64(42), rs.Rows[0][1])
	assert.Nil(t, rs.Rows[1][1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELEC").WillReturnError(errors.New("syntax error line 1"))

	dc := NewFromDB(db, Snowflake, createTestLogger())
	rs, err := dc.ExecuteQuery(context.Background(), "SELEC broken")

	assert.Nil(t, rs)
	assert.ErrorIs(t, err, ErrQuery)
	assert.False(t, errors.Is(err, ErrConnectivity))

	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "SELEC broken", qe.Query)
	assert.True(t, IsNoData(err))
}

func TestQueryMaps(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("A").AddRow("B"))

	dc := NewFromDB(db, Snowflake, createTestLogger())
	maps, err := dc.QueryMaps(context.Background(), "SELECT table_name FROM information_schema.tables")
	require.NoError(t, err)
	require.Len(t, maps, 2)
	assert.Equal(t, "A", maps[0]["table_name"])
	assert.Equal(t, "B", maps[1]["table_name"])
}

func TestQueryIntEmptyResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"n"}))

	dc := NewFromDB(db, Snowflake, createTestLogger())
	_, err = dc.QueryInt(context.Background(), "SELECT n FROM t")
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestCountRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(`SELECT COUNT\(\*\) AS row_count FROM "STAGING"."ORDERS"`).
		WillReturnRows(sqlmock.NewRows([]string{"ROW_COUNT"}).AddRow("10"))

	dc := NewFromDB(db, Snowflake, createTestLogger())
	n, err := dc.CountRows(context.Background(), "STAGING", "ORDERS")
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	_, err = dc.CountRows(context.Background(), "STAGING", "ORDERS; DROP TABLE X")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassifyKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"bad connection", driver.ErrBadConn, KindConnectivity},
		{"network", &net.OpError{Op: "dial", Err: errors.New("refused")}, KindConnectivity},
		{"mysql access denied", &mysql.MySQLError{Number: 1045, Message: "Access denied"}, KindConnectivity},
		{"mysql syntax", &mysql.MySQLError{Number: 1064, Message: "syntax"}, KindQuery},
		{"snowflake connection", &gosnowflake.SnowflakeError{Number: 390100, SQLState: "08004"}, KindConnectivity},
		{"snowflake compile", &gosnowflake.SnowflakeError{Number: 1003, SQLState: "42000"}, KindQuery},
		{"generic", errors.New("boom"), KindQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyKind(tt.err))
		})
	}
}

func TestQuoteIdentifier(t *testing.T) {
	q, err := Snowflake.QuoteIdentifier("ORDERS_2024")
	require.NoError(t, err)
	assert.Equal(t, `"ORDERS_2024"`, q)

	q, err = MySQL.QuoteIdentifier("orders")
	require.NoError(t, err)
	assert.Equal(t, "`orders`", q)

	for _, bad := range []string{"", "1abc", `a"b`, "a b", "x;--", "a.b"} {
		_, err := Snowflake.QuoteIdentifier(bad)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, bad)
	}

	name, err := Snowflake.Qualified("STAGING", "ORDERS")
	require.NoError(t, err)
	assert.Equal(t, `"STAGING"."ORDERS"`, name)
}

func TestTruncateTime(t *testing.T) {
	expr, err := Snowflake.TruncateTime("month", `"CREATED_AT"`)
	require.NoError(t, err)
	assert.Equal(t, `DATE_TRUNC('MONTH', "CREATED_AT")`, expr)

	expr, err = MySQL.TruncateTime("day", "`created_at`")
	require.NoError(t, err)
	assert.Equal(t, "DATE(`created_at`)", expr)

	expr, err = MySQL.TruncateTime("year", "`created_at`")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(expr, "DATE_FORMAT("))

	_, err = Snowflake.TruncateTime("fortnight", `"X"`)
	assert.Error(t, err)
}

func TestConversions(t *testing.T) {
	n, err := ToInt64("38")
	require.NoError(t, err)
	assert.Equal(t, int64(38), n)

	n, err = ToInt64([]byte("7"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	_, err = ToInt64(nil)
	assert.Error(t, err)

	f, ok, err := ToFloat64("2.5")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2.5, f)

	_, ok, err = ToFloat64(nil)
	require.NoError(t, err)
	assert.False(t, ok)

	ts, ok, err := ToTime("2024-03-01")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.March, ts.Month())

	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "12", ToString(int64(12)))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("TEST_ENV_INT", "42")
	assert.Equal(t, 42, getEnvInt("TEST_ENV_INT", 10))

	t.Setenv("TEST_ENV_INT", "not-an-int")
	assert.Equal(t, 10, getEnvInt("TEST_ENV_INT", 10))

	assert.Equal(t, 10, getEnvInt("TEST_ENV_INT_UNSET", 10))
}
