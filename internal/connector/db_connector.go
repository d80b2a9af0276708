package connector

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"github.com/snowflakedb/gosnowflake"

	"github.com/amolpatilofficial/gdp-dashboard/pkg/models"
)

// DefaultHealthCheckInterval is how long a cached handle is trusted before it is pinged again
const DefaultHealthCheckInterval = 30 * time.Second

// Config holds the static connection settings
type Config struct {
	Driver       string
	Account      string
	User         string
	Password     string
	Warehouse    string
	Database     string
	Role         string
	Host         string
	Port         string
	LoginTimeout time.Duration
}

// OpenFunc opens a database handle; sql.Open by default
type OpenFunc func(driverName, dsn string) (*sql.DB, error)

// DatabaseConnector is the session object shared by every operation. It owns
// one *sql.DB for its lifetime and reopens it if the warehouse drops it.
type DatabaseConnector struct {
	Config              Config
	Dialect             Dialect
	Logger              *logrus.Logger
	HealthCheckInterval time.Duration
	Opener              OpenFunc

	mu          sync.Mutex
	db          *sql.DB
	lastChecked time.Time
	verified    bool
}

// NewDatabaseConnector creates a new database connector. Empty fields are
// taken from the environment.
func NewDatabaseConnector(cfg Config, logger *logrus.Logger) (*DatabaseConnector, error) {
	if cfg.Driver == "" {
		cfg.Driver = getEnvOrDefault("WAREHOUSE_DRIVER", Snowflake.Name)
	}
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	cfg.Driver = dialect.Name
	applyEnvDefaults(&cfg)

	return &DatabaseConnector{
		Config:              cfg,
		Dialect:             dialect,
		Logger:              logger,
		HealthCheckInterval: DefaultHealthCheckInterval,
		Opener:              sql.Open,
	}, nil
}

// NewFromDB wraps an already opened handle
func NewFromDB(db *sql.DB, dialect Dialect, logger *logrus.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config:              Config{Driver: dialect.Name},
		Dialect:             dialect,
		Logger:              logger,
		HealthCheckInterval: DefaultHealthCheckInterval,
		Opener:              sql.Open,
		db:                  db,
		lastChecked:         time.Now(),
	}
}

func applyEnvDefaults(cfg *Config) {
	if cfg.Driver == MySQL.Name {
		setDefault(&cfg.Host, "MYSQL_HOST", "localhost")
		setDefault(&cfg.User, "MYSQL_USER", "root")
		setDefault(&cfg.Password, "MYSQL_PASSWORD", "")
		setDefault(&cfg.Database, "MYSQL_DATABASE", "")
		setDefault(&cfg.Port, "MYSQL_PORT", "3306")
		return
	}

	setDefault(&cfg.Account, "SNOWFLAKE_ACCOUNT", "")
	setDefault(&cfg.User, "SNOWFLAKE_USER", "")
	setDefault(&cfg.Password, "SNOWFLAKE_PASSWORD", "")
	setDefault(&cfg.Warehouse, "SNOWFLAKE_WAREHOUSE", "")
	setDefault(&cfg.Database, "SNOWFLAKE_DATABASE", "")
	setDefault(&cfg.Role, "SNOWFLAKE_ROLE", "")
	if cfg.LoginTimeout == 0 {
		cfg.LoginTimeout = time.Duration(getEnvInt("SNOWFLAKE_LOGIN_TIMEOUT", 30)) * time.Second
	}
}

func setDefault(field *string, key, defaultValue string) {
	if *field == "" {
		*field = getEnvOrDefault(key, defaultValue)
	}
}

// DSN builds the driver connection string
func (dc *DatabaseConnector) DSN() (string, error) {
	cfg := dc.Config
	if cfg.Database == "" {
		return "", fmt.Errorf("database name must be provided either as an argument or in the environment")
	}

	if dc.Dialect.Name == MySQL.Name {
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
		mc.DBName = cfg.Database
		mc.ParseTime = true
		if cfg.LoginTimeout > 0 {
			mc.Timeout = cfg.LoginTimeout
		}
		return mc.FormatDSN(), nil
	}

	if cfg.Account == "" {
		return "", fmt.Errorf("snowflake account must be provided")
	}
	return gosnowflake.DSN(&gosnowflake.Config{
		Account:      cfg.Account,
		User:         cfg.User,
		Password:     cfg.Password,
		Warehouse:    cfg.Warehouse,
		Database:     cfg.Database,
		Role:         cfg.Role,
		LoginTimeout: cfg.LoginTimeout,
	})
}

// Connect establishes a connection to the warehouse
func (dc *DatabaseConnector) Connect(ctx context.Context) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.connectLocked(ctx)
}

func (dc *DatabaseConnector) connectLocked(ctx context.Context) error {
	dsn, err := dc.DSN()
	if err != nil {
		return newQueryError(KindConnectivity, "", err)
	}

	db, err := dc.Opener(dc.Dialect.DriverName, dsn)
	if err != nil {
		dc.Logger.Errorf("Error opening %s connection: %v", dc.Dialect.Name, err)
		return newQueryError(KindConnectivity, "", err)
	}

	if err := db.PingContext(ctx); err != nil {
		dc.Logger.Errorf("Error pinging %s database: %v", dc.Dialect.Name, err)
		_ = db.Close()
		return newQueryError(KindConnectivity, "", err)
	}

	dc.db = db
	dc.lastChecked = time.Now()
	dc.Logger.Infof("Connected to %s database: %s", dc.Dialect.Name, dc.Config.Database)
	return nil
}

// Handle returns the shared database handle, connecting on first use. A handle
// that fails its periodic ping is closed and replaced.
func (dc *DatabaseConnector) Handle(ctx context.Context) (*sql.DB, error) {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.db == nil {
		if err := dc.connectLocked(ctx); err != nil {
			return nil, err
		}
		return dc.db, nil
	}

	if time.Since(dc.lastChecked) < dc.HealthCheckInterval {
		return dc.db, nil
	}

	if err := dc.db.PingContext(ctx); err != nil {
		dc.Logger.Warningf("Connection to %s lost (%v), reconnecting", dc.Config.Database, err)
		dc.closeLocked()
		dc.verified = false
		if err := dc.connectLocked(ctx); err != nil {
			return nil, err
		}
		return dc.db, nil
	}

	dc.lastChecked = time.Now()
	return dc.db, nil
}

// Verify runs a probe query. It is the only operation that marks the session verified.
func (dc *DatabaseConnector) Verify(ctx context.Context) error {
	dc.setVerified(false)

	n, err := dc.QueryInt(ctx, "SELECT 1")
	if err != nil {
		dc.Logger.Errorf("Connection verification failed: %v", err)
		return err
	}
	if n != 1 {
		return newQueryError(KindQuery, "SELECT 1", fmt.Errorf("unexpected probe result %d", n))
	}

	dc.setVerified(true)
	dc.Logger.Info("Connection verified")
	return nil
}

// Verified reports whether the last Verify call succeeded
func (dc *DatabaseConnector) Verified() bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.verified
}

func (dc *DatabaseConnector) setVerified(v bool) {
	dc.mu.Lock()
	dc.verified = v
	dc.mu.Unlock()
}

// Disconnect closes the database connection
func (dc *DatabaseConnector) Disconnect() {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.closeLocked()
	dc.verified = false
}

func (dc *DatabaseConnector) closeLocked() {
	if dc.db == nil {
		return
	}
	if err := dc.db.Close(); err != nil {
		dc.Logger.Errorf("Error closing database connection: %v", err)
	} else {
		dc.Logger.Debugf("%s connection closed", dc.Dialect.Name)
	}
	dc.db = nil
}

// ExecuteQuery executes a SQL query and returns the rows in column order.
// Every failure is returned as a *QueryError.
func (dc *DatabaseConnector) ExecuteQuery(ctx context.Context, query string, params ...interface{}) (result *models.ResultSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			dc.Logger.Errorf("Recovered from panic while executing query: %v", r)
			result, err = nil, newQueryError(KindQuery, query, fmt.Errorf("panic: %v", r))
		}
	}()

	db, err := dc.Handle(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		dc.Logger.Errorf("Error executing query: %v", err)
		return nil, newQueryError(classifyKind(err), query, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		dc.Logger.Errorf("Error getting columns: %v", err)
		return nil, newQueryError(KindQuery, query, err)
	}

	result = &models.ResultSet{Columns: columns}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			dc.Logger.Errorf("Error scanning row: %v", err)
			return nil, newQueryError(KindQuery, query, err)
		}

		for i, val := range values {
			// Convert []byte to string for text fields
			if b, ok := val.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}

	if err := rows.Err(); err != nil {
		dc.Logger.Errorf("Error iterating rows: %v", err)
		return nil, newQueryError(classifyKind(err), query, err)
	}

	return result, nil
}

// QueryMaps executes a query and returns one map per row keyed by lower-case column label
func (dc *DatabaseConnector) QueryMaps(ctx context.Context, query string, params ...interface{}) ([]map[string]interface{}, error) {
	rs, err := dc.ExecuteQuery(ctx, query, params...)
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0, len(rs.Rows))
	for _, values := range rs.Rows {
		row := make(map[string]interface{}, len(rs.Columns))
		for i, col := range rs.Columns {
			row[strings.ToLower(col)] = values[i]
		}
		results = append(results, row)
	}
	return results, nil
}

// QueryInt executes a query expected to return a single integer
func (dc *DatabaseConnector) QueryInt(ctx context.Context, query string, params ...interface{}) (int64, error) {
	rs, err := dc.ExecuteQuery(ctx, query, params...)
	if err != nil {
		return 0, err
	}
	if rs.Empty() || len(rs.Rows[0]) == 0 {
		return 0, newQueryError(KindEmpty, query, nil)
	}

	n, err := ToInt64(rs.Rows[0][0])
	if err != nil {
		return 0, newQueryError(KindQuery, query, err)
	}
	return n, nil
}

// CountRows returns the number of rows in schema.table
func (dc *DatabaseConnector) CountRows(ctx context.Context, schema, table string) (int64, error) {
	name, err := dc.Dialect.Qualified(schema, table)
	if err != nil {
		return 0, err
	}
	return dc.QueryInt(ctx, fmt.Sprintf("SELECT COUNT(*) AS row_count FROM %s", name))
}

// getEnvOrDefault gets an environment variable or returns a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from an environment variable
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
