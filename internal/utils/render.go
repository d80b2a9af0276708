package utils

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/amolpatilofficial/gdp-dashboard/internal/connector"
	"github.com/amolpatilofficial/gdp-dashboard/pkg/models"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

func rightAlign(numbers ...int) []table.ColumnConfig {
	configs := make([]table.ColumnConfig, 0, len(numbers))
	for _, n := range numbers {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight})
	}
	return configs
}

// PrintNoData prints the notice shown instead of a widget whose data could not
// be retrieved. The notice never reads as a zero value.
func PrintNoData(w io.Writer, what string, err error) {
	if err == nil {
		_, _ = fmt.Fprintf(w, "No data available for %s: query returned no rows\n", what)
		return
	}
	var qe *connector.QueryError
	if errors.As(err, &qe) {
		_, _ = fmt.Fprintf(w, "No data available for %s (%s): %v\n", what, qe.Kind, err)
		return
	}
	_, _ = fmt.Fprintf(w, "No data available for %s: %v\n", what, err)
}

// PrintList prints a one-column table of names
func PrintList(w io.Writer, header string, names []string) {
	if len(names) == 0 {
		PrintNoData(w, strings.ToLower(header), nil)
		return
	}
	t := newTable(w, "")
	t.AppendHeader(table.Row{"#", header})
	for i, name := range names {
		t.AppendRow(table.Row{i + 1, name})
	}
	t.Render()
}

// PrintSchemaSummary prints the headline figures of a schema and, when some
// tables could not be counted, which ones
func PrintSchemaSummary(w io.Writer, summary models.SchemaSummary, counts *models.SchemaCountResult, storageErr error) {
	t := newTable(w, "SCHEMA SUMMARY: "+summary.Schema)
	t.AppendRow(table.Row{"Total tables", summary.TotalTables})
	t.AppendRow(table.Row{"Total rows", FormatCount(summary.TotalRows)})
	switch {
	case storageErr != nil:
		t.AppendRow(table.Row{"Storage", "unavailable"})
	case summary.StorageBytes > 0:
		t.AppendRow(table.Row{"Storage", FormatBytes(summary.StorageBytes)})
	}
	if counts != nil && !counts.Complete() {
		t.AppendRow(table.Row{"Tables not counted", len(counts.Failed)})
	}
	t.SetColumnConfigs(rightAlign(2))
	t.Render()

	if counts == nil || counts.Complete() {
		return
	}
	_, _ = fmt.Fprintln(w, "Row total excludes tables that could not be counted:")
	for _, f := range counts.Failed {
		_, _ = fmt.Fprintf(w, "  - %s: %v\n", f.Table, f.Err)
	}
}

// PrintTableCounts prints the exact row count of every counted table
func PrintTableCounts(w io.Writer, counts *models.SchemaCountResult) {
	t := newTable(w, "")
	t.AppendHeader(table.Row{"Table", "Rows"})
	for _, c := range counts.Succeeded {
		t.AppendRow(table.Row{c.Table, FormatCount(c.RowCount)})
	}
	for _, f := range counts.Failed {
		t.AppendRow(table.Row{f.Table, "n/a"})
	}
	t.SetColumnConfigs(rightAlign(2))
	t.Render()
}

// PrintTableSummaries prints catalog statistics per table
func PrintTableSummaries(w io.Writer, tables []models.TableSummary) {
	t := newTable(w, "")
	t.AppendHeader(table.Row{"Table", "Rows", "Size", "Created", "Last altered"})
	for _, s := range tables {
		t.AppendRow(table.Row{s.Name, FormatCount(s.RowCount), FormatBytes(s.SizeBytes), formatTime(s.CreatedAt), formatTime(s.LastAlteredAt)})
	}
	t.SetColumnConfigs(rightAlign(2, 3))
	t.Render()
}

// PrintColumns prints the column descriptors of a table with their classification
func PrintColumns(w io.Writer, columns []models.Column, classes map[string]models.ColumnClass) {
	t := newTable(w, "")
	t.AppendHeader(table.Row{"#", "Column", "Type", "Nullable", "Class", "Comment"})
	for _, c := range columns {
		nullable := "NO"
		if c.IsNullable {
			nullable = "YES"
		}
		t.AppendRow(table.Row{c.Position, c.Name, c.DataType, nullable, classes[c.Name].String(), c.Comment})
	}
	t.Render()
}

// PrintClassification prints the numeric, date-like and other column sets
func PrintClassification(w io.Writer, classes models.ColumnClasses) {
	t := newTable(w, "COLUMN CLASSIFICATION")
	t.AppendHeader(table.Row{"Class", "Count", "Columns"})
	t.AppendRow(table.Row{"numeric", len(classes.Numeric), strings.Join(classes.Numeric, ", ")})
	t.AppendRow(table.Row{"date-like", len(classes.DateLike), strings.Join(classes.DateLike, ", ")})
	t.AppendRow(table.Row{"other", len(classes.Other), strings.Join(classes.Other, ", ")})
	t.Render()
}

// PrintProfile prints the descriptive statistics of a numeric column
func PrintProfile(w io.Writer, p *models.NumericProfile) {
	t := newTable(w, "PROFILE: "+p.Column)
	t.AppendRow(table.Row{"Rows", FormatCount(p.Count)})
	t.AppendRow(table.Row{"Nulls", FormatCount(p.Nulls)})
	t.AppendRow(table.Row{"Distinct", FormatCount(p.Distinct)})
	t.AppendRow(table.Row{"Min", formatFloat(p.Min)})
	t.AppendRow(table.Row{"Max", formatFloat(p.Max)})
	t.AppendRow(table.Row{"Mean", formatFloat(p.Mean)})
	t.AppendRow(table.Row{"Std dev", formatFloat(p.StdDev)})
	t.SetColumnConfigs(rightAlign(2))
	t.Render()
}

// PrintDistribution prints value frequencies with their share of the listed rows
func PrintDistribution(w io.Writer, column string, values []models.ValueFrequency) {
	var total int64
	for _, v := range values {
		total += v.Count
	}

	t := newTable(w, "DISTRIBUTION: "+column)
	t.AppendHeader(table.Row{"Value", "Count", "Share"})
	for _, v := range values {
		share := 0.0
		if total > 0 {
			share = float64(v.Count) / float64(total) * 100
		}
		t.AppendRow(table.Row{formatValue(v.Value), FormatCount(v.Count), fmt.Sprintf("%.1f%%", share)})
	}
	t.SetColumnConfigs(rightAlign(2, 3))
	t.Render()
}

// PrintNullAudit prints the null count of every column
func PrintNullAudit(w io.Writer, audit *models.NullAudit) {
	t := newTable(w, fmt.Sprintf("NULL AUDIT: %s (%s rows)", audit.Table, FormatCount(audit.TotalRows)))
	t.AppendHeader(table.Row{"Column", "Nulls", "Percent"})
	for _, c := range audit.Columns {
		t.AppendRow(table.Row{c.Column, FormatCount(c.Nulls), fmt.Sprintf("%.2f%%", c.Percent)})
	}
	t.SetColumnConfigs(rightAlign(2, 3))
	t.Render()
}

// PrintTimeSeries prints one row per period
func PrintTimeSeries(w io.Writer, grain string, buckets []models.TimeBucket) {
	withSum := false
	for _, b := range buckets {
		if b.Sum != nil {
			withSum = true
			break
		}
	}

	t := newTable(w, "TIME SERIES by "+grain)
	header := table.Row{"Period", "Rows"}
	if withSum {
		header = append(header, "Total")
	}
	t.AppendHeader(header)
	for _, b := range buckets {
		row := table.Row{b.Period.Format("2006-01-02"), FormatCount(b.Count)}
		if withSum {
			row = append(row, formatFloat(b.Sum))
		}
		t.AppendRow(row)
	}
	t.SetColumnConfigs(rightAlign(2, 3))
	t.Render()
}

// PrintCorrelation prints the correlation matrix; undefined coefficients show as "-"
func PrintCorrelation(w io.Writer, m *models.CorrelationMatrix) {
	t := newTable(w, "CORRELATION")
	header := table.Row{""}
	for _, c := range m.Columns {
		header = append(header, c)
	}
	t.AppendHeader(header)
	for i, c := range m.Columns {
		row := table.Row{c}
		for _, v := range m.Values[i] {
			if v == nil {
				row = append(row, "-")
				continue
			}
			row = append(row, fmt.Sprintf("%.3f", *v))
		}
		t.AppendRow(row)
	}
	t.Render()
}

// PrintRelationships prints foreign keys, table clusters, cycles and a
// dependency order of the schema
func PrintRelationships(w io.Writer, rel *models.Relationships) {
	fk := newTable(w, "FOREIGN KEYS: "+rel.Schema)
	fk.AppendHeader(table.Row{"Table", "Column", "References", "Constraint"})
	for _, k := range rel.ForeignKeys {
		fk.AppendRow(table.Row{k.Table, k.Column, k.ReferencedTable + "." + k.ReferencedColumn, k.ConstraintName})
	}
	fk.Render()

	if len(rel.Clusters) > 0 {
		_, _ = fmt.Fprintln(w, "\nRelated table clusters:")
		for i, c := range rel.Clusters {
			_, _ = fmt.Fprintf(w, "  %d. %s\n", i+1, strings.Join(c, ", "))
		}
	}
	if len(rel.Cycles) > 0 {
		_, _ = fmt.Fprintln(w, "\nCircular references:")
		for _, c := range rel.Cycles {
			_, _ = fmt.Fprintf(w, "  %s\n", strings.Join(c, " <-> "))
		}
	}
	if len(rel.Order) > 0 {
		_, _ = fmt.Fprintln(w, "\nDependency order (referenced tables first):")
		for i, name := range rel.Order {
			_, _ = fmt.Fprintf(w, "  %3d. %s\n", i+1, name)
		}
	}
}

// PrintResultSet prints a query result as a table
func PrintResultSet(w io.Writer, rs *models.ResultSet) {
	t := newTable(w, "")
	header := make(table.Row, len(rs.Columns))
	for i, col := range rs.Columns {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, values := range rs.Rows {
		row := make(table.Row, len(values))
		for i, v := range values {
			row[i] = formatValue(v)
		}
		t.AppendRow(row)
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(rs.Rows))
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatFloat(f *float64) string {
	if f == nil {
		return "NULL"
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}

// FormatCount formats n with thousands separators
func FormatCount(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// FormatBytes formats a byte count using binary units
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
