package connector

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern is the whitelist every interpolated identifier must match
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// Dialect captures the SQL differences between the supported warehouses
type Dialect struct {
	Name       string
	DriverName string
	quote      string
}

var (
	// Snowflake is the default warehouse dialect
	Snowflake = Dialect{Name: "snowflake", DriverName: "snowflake", quote: `"`}
	// MySQL is supported for local development against a MySQL catalog
	MySQL = Dialect{Name: "mysql", DriverName: "mysql", quote: "`"}
)

// DialectFor returns the dialect registered under name
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "snowflake":
		return Snowflake, nil
	case "mysql":
		return MySQL, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported driver %q (supported: snowflake, mysql)", name)
	}
}

// ValidIdentifier reports whether name may be interpolated into a query
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// QuoteIdentifier validates name and wraps it in the dialect's quote character.
// Names are quoted verbatim, so they must be spelled as the catalog reports them.
func (d Dialect) QuoteIdentifier(name string) (string, error) {
	if !ValidIdentifier(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return d.quote + name + d.quote, nil
}

// Qualified quotes and joins the parts of a dotted name, e.g. schema and table
func (d Dialect) Qualified(parts ...string) (string, error) {
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		q, err := d.QuoteIdentifier(p)
		if err != nil {
			return "", err
		}
		quoted = append(quoted, q)
	}
	return strings.Join(quoted, "."), nil
}

// TruncateTime returns an expression truncating the quoted column expr to grain.
// grain must be one of day, week, month or year.
func (d Dialect) TruncateTime(grain, expr string) (string, error) {
	grain = strings.ToLower(grain)
	if d.Name == MySQL.Name {
		switch grain {
		case "day":
			return fmt.Sprintf("DATE(%s)", expr), nil
		case "week":
			return fmt.Sprintf("DATE_SUB(DATE(%s), INTERVAL WEEKDAY(%s) DAY)", expr, expr), nil
		case "month":
			return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-01')", expr), nil
		case "year":
			return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-01-01')", expr), nil
		}
		return "", fmt.Errorf("unsupported time grain %q", grain)
	}

	switch grain {
	case "day", "week", "month", "year":
		return fmt.Sprintf("DATE_TRUNC('%s', %s)", strings.ToUpper(grain), expr), nil
	}
	return "", fmt.Errorf("unsupported time grain %q", grain)
}
