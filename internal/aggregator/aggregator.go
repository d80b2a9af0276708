// Package aggregator folds per-table statistics into schema-level summaries.
package aggregator

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/amolpatilofficial/gdp-dashboard/internal/analyzer"
	"github.com/amolpatilofficial/gdp-dashboard/internal/connector"
	"github.com/amolpatilofficial/gdp-dashboard/pkg/models"
)

// TableLister lists the tables of a schema
type TableLister interface {
	ListTables(ctx context.Context, schema string) ([]string, error)
}

// RowCounter counts the rows of one table
type RowCounter interface {
	CountRows(ctx context.Context, schema, table string) (int64, error)
}

// MetadataReader reads catalog statistics of every table in one round trip
type MetadataReader interface {
	TableSummaries(ctx context.Context, schema string) ([]models.TableSummary, error)
}

// SchemaResolver maps a user-supplied schema name to the spelling the catalog uses
type SchemaResolver interface {
	CheckSchema(schema string) (string, error)
}

// Aggregator computes schema summaries
type Aggregator struct {
	Lister   TableLister
	Counter  RowCounter
	Metadata MetadataReader
	// Resolver is optional; without it schema names are used as given
	Resolver SchemaResolver
	// Parallelism bounds the number of count queries in flight; values below 2 count serially
	Parallelism int
	Logger      *logrus.Logger
}

// NewAggregator wires an aggregator to a schema analyzer and its connection
func NewAggregator(sa *analyzer.SchemaAnalyzer, parallelism int, logger *logrus.Logger) *Aggregator {
	return &Aggregator{
		Lister:      sa,
		Counter:     sa.DB,
		Metadata:    sa,
		Resolver:    sa,
		Parallelism: parallelism,
		Logger:      logger,
	}
}

func (a *Aggregator) resolve(schema string) (string, error) {
	if a.Resolver == nil {
		return schema, nil
	}
	return a.Resolver.CheckSchema(schema)
}

// SummarizeSchema issues one COUNT(*) per table. A table whose count fails is
// reported in Failed and adds nothing to the row total. A schema with no
// tables, or one where every count failed, has no data and is returned as an
// error instead of a zero summary.
func (a *Aggregator) SummarizeSchema(ctx context.Context, schema string) (*models.SchemaCountResult, error) {
	schema, err := a.resolve(schema)
	if err != nil {
		return nil, err
	}

	tables, err := a.Lister.ListTables(ctx, schema)
	if err != nil {
		a.Logger.Errorf("Could not list tables for schema %s: %v", schema, err)
		return nil, fmt.Errorf("%w: listing tables in %s: %w", connector.ErrUnavailable, schema, err)
	}
	if len(tables) == 0 {
		a.Logger.Warningf("Schema %s has no tables", schema)
		return nil, fmt.Errorf("%w: %w: no tables in schema %s", connector.ErrUnavailable, connector.ErrEmptyResult, schema)
	}

	counts := make([]int64, len(tables))
	errs := make([]error, len(tables))

	limit := a.Parallelism
	if limit < 1 {
		limit = 1
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for i, table := range tables {
		g.Go(func() error {
			n, err := a.Counter.CountRows(ctx, schema, table)
			if err != nil {
				a.Logger.Warningf("Could not count rows for table %s.%s: %v", schema, table, err)
				errs[i] = err
				return nil
			}
			a.Logger.Debugf("Table %s.%s has %d rows", schema, table, n)
			counts[i] = n
			return nil
		})
	}
	_ = g.Wait()

	result := &models.SchemaCountResult{
		Schema: schema,
		Tables: tables,
	}
	for i, table := range tables {
		if errs[i] != nil {
			result.Failed = append(result.Failed, models.TableFailure{Table: table, Err: errs[i]})
			continue
		}
		result.Succeeded = append(result.Succeeded, models.TableCount{Table: table, RowCount: counts[i]})
	}

	if len(result.Succeeded) == 0 {
		a.Logger.Errorf("Schema %s: every table count failed", schema)
		return nil, fmt.Errorf("%w: every table count in %s failed: %w", connector.ErrUnavailable, schema, result.Failed[0].Err)
	}
	if !result.Complete() {
		a.Logger.Warningf("Schema %s: %d of %d table counts failed", schema, len(result.Failed), len(tables))
	}
	return result, nil
}

// SummarizeFromMetadata folds the catalog statistics of a schema in a single
// query. Row counts are the catalog's figures and may lag behind COUNT(*).
func (a *Aggregator) SummarizeFromMetadata(ctx context.Context, schema string) (models.SchemaSummary, []models.TableSummary, error) {
	schema, err := a.resolve(schema)
	if err != nil {
		return models.SchemaSummary{}, nil, err
	}
	tables, err := a.Metadata.TableSummaries(ctx, schema)
	if err != nil {
		return models.SchemaSummary{}, nil, fmt.Errorf("%w: reading table metadata for %s: %w", connector.ErrUnavailable, schema, err)
	}
	if len(tables) == 0 {
		return models.SchemaSummary{}, nil, fmt.Errorf("%w: %w: no table metadata for schema %s", connector.ErrUnavailable, connector.ErrEmptyResult, schema)
	}
	return Fold(schema, tables), tables, nil
}

// Fold sums table summaries into a schema summary
func Fold(schema string, tables []models.TableSummary) models.SchemaSummary {
	summary := models.SchemaSummary{Schema: schema, TotalTables: len(tables)}
	for _, t := range tables {
		summary.TotalRows += t.RowCount
		summary.StorageBytes += t.SizeBytes
	}
	return summary
}

// Overview combines exact row counts with catalog storage figures
type Overview struct {
	Summary models.SchemaSummary
	Counts  *models.SchemaCountResult
	Tables  []models.TableSummary
	// StorageErr is set when storage figures could not be read; the counts are still valid
	StorageErr error
}

// Overview counts every table and, when the catalog allows, adds storage usage
func (a *Aggregator) Overview(ctx context.Context, schema string) (*Overview, error) {
	counts, err := a.SummarizeSchema(ctx, schema)
	if err != nil {
		return nil, err
	}

	ov := &Overview{Summary: counts.Summary(), Counts: counts}
	if a.Metadata == nil {
		return ov, nil
	}

	meta, tables, err := a.SummarizeFromMetadata(ctx, schema)
	if err != nil {
		a.Logger.Warningf("Storage usage unavailable for schema %s: %v", schema, err)
		ov.StorageErr = err
		return ov, nil
	}
	ov.Summary.StorageBytes = meta.StorageBytes
	ov.Tables = tables
	return ov, nil
}

// SchemaResult is the outcome of summarizing one schema of a database
type SchemaResult struct {
	Schema string
	Counts *models.SchemaCountResult
	Err    error
}

// SummarizeDatabase summarizes each schema in turn
func (a *Aggregator) SummarizeDatabase(ctx context.Context, schemas []string) []SchemaResult {
	results := make([]SchemaResult, 0, len(schemas))
	for _, schema := range schemas {
		counts, err := a.SummarizeSchema(ctx, schema)
		results = append(results, SchemaResult{Schema: schema, Counts: counts, Err: err})
	}
	return results
}
