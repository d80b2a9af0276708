package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amolpatilofficial/gdp-dashboard/internal/analyzer"
	"github.com/amolpatilofficial/gdp-dashboard/internal/connector"
	"github.com/amolpatilofficial/gdp-dashboard/internal/stats"
	"github.com/amolpatilofficial/gdp-dashboard/internal/utils"
	"github.com/amolpatilofficial/gdp-dashboard/pkg/models"
)

func newVerifyCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the warehouse is reachable and the credentials work",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o, func(ctx context.Context, s *session) error {
				if err := s.db.Verify(ctx); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Connection to %s failed: %v\n", s.db.Config.Database, err)
					return errReported
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Connected to %s database %s\n", s.db.Dialect.Name, s.db.Config.Database)
				return nil
			})
		},
	}
}

func newSchemasCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "schemas",
		Short: "List the schemas that may be queried",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o, func(ctx context.Context, s *session) error {
				schemas, err := s.analyzer.ListSchemas(ctx)
				if err != nil {
					return report(cmd.OutOrStdout(), "schemas", err)
				}
				utils.PrintList(cmd.OutOrStdout(), "Schema", schemas)
				return nil
			})
		},
	}
}

func newTablesCmd(o *options) *cobra.Command {
	var views, metadata bool

	cmd := &cobra.Command{
		Use:   "tables <schema>",
		Short: "List the tables of a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema := args[0]
			return run(cmd.Context(), o, func(ctx context.Context, s *session) error {
				w := cmd.OutOrStdout()
				switch {
				case metadata:
					tables, err := s.analyzer.TableSummaries(ctx, schema)
					if err != nil {
						return report(w, "tables of "+schema, err)
					}
					utils.PrintTableSummaries(w, tables)
				case views:
					names, err := s.analyzer.ListViews(ctx, schema)
					if err != nil {
						return report(w, "views of "+schema, err)
					}
					utils.PrintList(w, "View", names)
				default:
					names, err := s.analyzer.ListTables(ctx, schema)
					if err != nil {
						return report(w, "tables of "+schema, err)
					}
					utils.PrintList(w, "Table", names)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&views, "views", false, "List views instead of tables")
	cmd.Flags().BoolVarP(&metadata, "metadata", "m", false, "Show catalog row counts, sizes and timestamps")
	return cmd
}

func newSummaryCmd(o *options) *cobra.Command {
	var metadata, perTable bool

	cmd := &cobra.Command{
		Use:   "summary [schema...]",
		Short: "Count tables and rows of one or more schemas",
		Long: `Count tables and rows of one or more schemas.

Rows are counted exactly with one COUNT(*) per table. Tables whose count fails
are listed and left out of the row total. With --metadata the figures come
from the catalog in a single query instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o, func(ctx context.Context, s *session) error {
				schemas := args
				if len(schemas) == 0 {
					schemas = s.cfg.Schemas
				}
				if len(schemas) == 0 {
					return errors.New("no schema given; pass one or set --schemas")
				}

				w := cmd.OutOrStdout()
				if metadata {
					return summarizeMetadata(ctx, s, schemas, perTable, cmd)
				}
				if len(schemas) == 1 {
					ov, err := s.aggregator.Overview(ctx, schemas[0])
					if err != nil {
						return report(w, "summary of "+schemas[0], err)
					}
					utils.PrintSchemaSummary(w, ov.Summary, ov.Counts, ov.StorageErr)
					if perTable {
						utils.PrintTableCounts(w, ov.Counts)
					}
					return nil
				}

				var failed bool
				for _, r := range s.aggregator.SummarizeDatabase(ctx, schemas) {
					if r.Err != nil {
						if err := report(w, "summary of "+r.Schema, r.Err); err != nil {
							failed = true
						}
						continue
					}
					utils.PrintSchemaSummary(w, r.Counts.Summary(), r.Counts, nil)
					if perTable {
						utils.PrintTableCounts(w, r.Counts)
					}
				}
				if failed {
					return errReported
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&metadata, "metadata", "m", false, "Use catalog statistics instead of COUNT(*)")
	cmd.Flags().BoolVarP(&perTable, "tables", "t", false, "Also print the count of every table")
	return cmd
}

func summarizeMetadata(ctx context.Context, s *session, schemas []string, perTable bool, cmd *cobra.Command) error {
	w := cmd.OutOrStdout()
	var failed bool
	for _, schema := range schemas {
		summary, tables, err := s.aggregator.SummarizeFromMetadata(ctx, schema)
		if err != nil {
			if err := report(w, "summary of "+schema, err); err != nil {
				failed = true
			}
			continue
		}
		utils.PrintSchemaSummary(w, summary, nil, nil)
		if perTable {
			utils.PrintTableSummaries(w, tables)
		}
	}
	if failed {
		return errReported
	}
	return nil
}

func newDescribeCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <schema> <table>",
		Short: "Show the columns of a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o, func(ctx context.Context, s *session) error {
				columns, err := s.analyzer.DescribeTable(ctx, args[0], args[1])
				if err != nil {
					return report(cmd.OutOrStdout(), args[0]+"."+args[1], err)
				}
				classes := make(map[string]models.ColumnClass, len(columns))
				for _, c := range columns {
					classes[c.Name] = analyzer.ClassifyType(c.DataType)
				}
				utils.PrintColumns(cmd.OutOrStdout(), columns, classes)
				return nil
			})
		},
	}
}

func newClassifyCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <schema> <table>",
		Short: "Split the columns of a table into numeric, date-like and other",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o, func(ctx context.Context, s *session) error {
				classes, err := s.analyzer.ClassifyTable(ctx, args[0], args[1])
				if err != nil {
					return report(cmd.OutOrStdout(), args[0]+"."+args[1], err)
				}
				utils.PrintClassification(cmd.OutOrStdout(), classes)
				return nil
			})
		},
	}
}

func newPreviewCmd(o *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "preview <schema> <table>",
		Short: "Show the first rows of a table or view",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o, func(ctx context.Context, s *session) error {
				rs, err := s.profiler.Preview(ctx, args[0], args[1], limit)
				if err != nil {
					return report(cmd.OutOrStdout(), "preview of "+args[1], err)
				}
				utils.PrintResultSet(cmd.OutOrStdout(), rs)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", stats.DefaultPreviewLimit, "Maximum number of rows")
	return cmd
}

func newProfileCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "profile <schema> <table> <column>",
		Short: "Descriptive statistics of a numeric column",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o, func(ctx context.Context, s *session) error {
				p, err := s.profiler.Profile(ctx, args[0], args[1], args[2])
				if err != nil {
					return report(cmd.OutOrStdout(), "profile of "+args[2], err)
				}
				utils.PrintProfile(cmd.OutOrStdout(), p)
				return nil
			})
		},
	}
}

func newDistributionCmd(o *options) *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "distribution <schema> <table> <column>",
		Short: "Most frequent values of a column",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o, func(ctx context.Context, s *session) error {
				values, err := s.profiler.TopValues(ctx, args[0], args[1], args[2], top)
				if err != nil {
					return report(cmd.OutOrStdout(), "distribution of "+args[2], err)
				}
				utils.PrintDistribution(cmd.OutOrStdout(), args[2], values)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&top, "top", "n", stats.DefaultTopValues, "Number of values to show")
	return cmd
}

func newNullsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "nulls <schema> <table>",
		Short: "Count NULL values in every column of a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o, func(ctx context.Context, s *session) error {
				audit, err := s.profiler.NullAudit(ctx, args[0], args[1])
				if err != nil {
					return report(cmd.OutOrStdout(), "null audit of "+args[1], err)
				}
				utils.PrintNullAudit(cmd.OutOrStdout(), audit)
				return nil
			})
		},
	}
}

func newTimeSeriesCmd(o *options) *cobra.Command {
	var grain, value string

	cmd := &cobra.Command{
		Use:   "timeseries <schema> <table> <date-column>",
		Short: "Row counts per day, week, month or year",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o, func(ctx context.Context, s *session) error {
				buckets, err := s.profiler.TimeSeries(ctx, args[0], args[1], args[2], grain, value)
				if err != nil {
					return report(cmd.OutOrStdout(), "time series of "+args[2], err)
				}
				utils.PrintTimeSeries(cmd.OutOrStdout(), strings.ToLower(grain), buckets)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&grain, "grain", "g", "month", "Bucket size: day, week, month or year")
	cmd.Flags().StringVarP(&value, "value", "v", "", "Numeric column to sum per bucket")
	return cmd
}

func newCorrelationCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "correlation <schema> <table> [column...]",
		Short: "Pearson correlation matrix of numeric columns",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o, func(ctx context.Context, s *session) error {
				m, err := s.profiler.Correlation(ctx, args[0], args[1], args[2:])
				if err != nil {
					return report(cmd.OutOrStdout(), "correlation of "+args[1], err)
				}
				utils.PrintCorrelation(cmd.OutOrStdout(), m)
				return nil
			})
		},
	}
}

func newRelationshipsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "relationships <schema>",
		Short: "Foreign keys, related table clusters and circular references of a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o, func(ctx context.Context, s *session) error {
				rel, err := s.analyzer.Relationships(ctx, args[0])
				if err != nil {
					return report(cmd.OutOrStdout(), "relationships of "+args[0], err)
				}
				utils.PrintRelationships(cmd.OutOrStdout(), rel)
				return nil
			})
		},
	}
}

func newQueryCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a single read-only statement and print the result",
		Long: `Run a single read-only statement and print the result.

The statement must start with SELECT, WITH, SHOW, DESCRIBE or EXPLAIN. One
trailing semicolon is allowed; any other semicolon is rejected, including one
inside a string literal. Use CHR(59) (Snowflake) or CHAR(59) (MySQL) where a
literal semicolon is needed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isReadOnly(args[0]) {
				return errors.New("only a single SELECT, WITH, SHOW, DESCRIBE or EXPLAIN statement is allowed")
			}
			return run(cmd.Context(), o, func(ctx context.Context, s *session) error {
				rs, err := s.db.ExecuteQuery(ctx, args[0])
				if err == nil && rs.Empty() {
					err = connector.NewEmptyResultError(args[0])
				}
				if err != nil {
					return report(cmd.OutOrStdout(), "query", err)
				}
				utils.PrintResultSet(cmd.OutOrStdout(), rs)
				return nil
			})
		},
	}
}
