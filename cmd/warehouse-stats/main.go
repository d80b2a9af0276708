package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "warehouse-stats",
		Short: "Descriptive statistics for the tables of a data warehouse",
		Long: `Warehouse Stats

Connects to a Snowflake (or MySQL) database and prints row counts, storage
usage, column profiles, distributions, null audits, time series and
correlation matrices for the schemas it is allowed to read.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Define flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.driver, "driver", "", "Warehouse driver: snowflake or mysql (default: snowflake)")
	flags.StringVarP(&opts.account, "account", "A", "", "Snowflake account identifier")
	flags.StringVarP(&opts.user, "user", "u", "", "Database user")
	flags.StringVarP(&opts.password, "password", "p", "", "Database password")
	flags.StringVarP(&opts.warehouse, "warehouse", "w", "", "Snowflake virtual warehouse")
	flags.StringVarP(&opts.database, "database", "d", "", "Database name")
	flags.StringVarP(&opts.role, "role", "R", "", "Snowflake role")
	flags.StringVarP(&opts.host, "host", "H", "", "MySQL host (default: localhost)")
	flags.StringVarP(&opts.port, "port", "P", "", "MySQL port (default: 3306)")
	flags.StringSliceVarP(&opts.schemas, "schemas", "s", nil, "Schemas that may be queried (default: all)")
	flags.IntVarP(&opts.parallelism, "parallelism", "j", 0, "Number of row count queries run at once (default: 4)")
	flags.StringVarP(&opts.configFile, "config", "c", "", "Path to YAML config file")
	flags.StringVarP(&opts.envFile, "env-file", "e", ".env", "Path to .env file")
	flags.StringVarP(&opts.logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newVerifyCmd(&opts),
		newSchemasCmd(&opts),
		newTablesCmd(&opts),
		newSummaryCmd(&opts),
		newDescribeCmd(&opts),
		newClassifyCmd(&opts),
		newPreviewCmd(&opts),
		newProfileCmd(&opts),
		newDistributionCmd(&opts),
		newNullsCmd(&opts),
		newTimeSeriesCmd(&opts),
		newCorrelationCmd(&opts),
		newRelationshipsCmd(&opts),
		newQueryCmd(&opts),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Execute
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}
