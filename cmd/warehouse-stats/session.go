package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/amolpatilofficial/gdp-dashboard/internal/aggregator"
	"github.com/amolpatilofficial/gdp-dashboard/internal/analyzer"
	"github.com/amolpatilofficial/gdp-dashboard/internal/config"
	"github.com/amolpatilofficial/gdp-dashboard/internal/connector"
	"github.com/amolpatilofficial/gdp-dashboard/internal/stats"
	"github.com/amolpatilofficial/gdp-dashboard/internal/utils"
)

// errReported is returned once a failure has been shown to the user
var errReported = errors.New("reported")

type options struct {
	driver      string
	account     string
	user        string
	password    string
	warehouse   string
	database    string
	role        string
	host        string
	port        string
	schemas     []string
	parallelism int
	configFile  string
	envFile     string
	logLevel    string
}

func (o *options) flagConfig() config.Config {
	return config.Config{
		Warehouse: config.WarehouseConfig{
			Driver:    o.driver,
			Account:   o.account,
			User:      o.user,
			Password:  o.password,
			Warehouse: o.warehouse,
			Database:  o.database,
			Role:      o.role,
			Host:      o.host,
			Port:      o.port,
		},
		Schemas:     o.schemas,
		Parallelism: o.parallelism,
		Logging:     config.LogConfig{Level: o.logLevel},
	}
}

// session holds everything a subcommand needs for one run
type session struct {
	cfg        *config.Config
	logger     *logrus.Logger
	db         *connector.DatabaseConnector
	analyzer   *analyzer.SchemaAnalyzer
	aggregator *aggregator.Aggregator
	profiler   *stats.Profiler
}

func openSession(o *options) (*session, error) {
	// Setup logging
	logger := utils.SetupLogging(o.logLevel)

	// Load environment variables
	utils.LoadEnvironmentVariables(o.envFile, o.driver, logger)

	cfg := &config.Config{}
	if o.configFile != "" {
		fileCfg, err := config.LoadConfig(o.configFile)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", o.configFile, err)
		}
		cfg = fileCfg
		logger.Debugf("Loaded configuration from %s", o.configFile)
	}
	cfg.Override(o.flagConfig())
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil && o.logLevel == "" {
		logger.SetLevel(level)
	}

	db, err := connector.NewDatabaseConnector(cfg.ConnectorConfig(), logger)
	if err != nil {
		return nil, err
	}

	// Validate connection parameters
	if !utils.ValidateConnectionParams(db.Config, logger) {
		return nil, fmt.Errorf("incomplete connection parameters for %s; see --help", db.Dialect.Name)
	}

	sa := analyzer.NewSchemaAnalyzer(db, cfg.Schemas, logger)
	return &session{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		analyzer:   sa,
		aggregator: aggregator.NewAggregator(sa, cfg.Parallelism, logger),
		profiler:   stats.NewProfiler(sa, logger),
	}, nil
}

func (s *session) close() {
	s.db.Disconnect()
}

// run opens a session, hands it to fn and closes it again
func run(ctx context.Context, o *options, fn func(context.Context, *session) error) error {
	s, err := openSession(o)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(ctx, s)
}

// report shows a failed widget as a "no data" notice. An empty result is not
// a failure; connectivity and query failures still end with a non-zero exit.
func report(w io.Writer, what string, err error) error {
	if err == nil {
		return nil
	}
	if !connector.IsNoData(err) {
		return err
	}
	utils.PrintNoData(w, what, err)
	if errors.Is(err, connector.ErrEmptyResult) {
		return nil
	}
	return errReported
}

var readOnlyPrefixes = []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "DESC", "EXPLAIN"}

// isReadOnly accepts a single statement that starts with a read-only keyword.
// Statements are not tokenized, so a semicolon inside a string literal is
// rejected as well.
func isReadOnly(query string) bool {
	q := strings.TrimSpace(query)
	q = strings.TrimSuffix(q, ";")
	if strings.Contains(q, ";") {
		return false
	}
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return false
	}
	first := strings.ToUpper(fields[0])
	for _, p := range readOnlyPrefixes {
		if first == p {
			return true
		}
	}
	return false
}
