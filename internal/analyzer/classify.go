package analyzer

import (
	"strings"

	"github.com/amolpatilofficial/gdp-dashboard/pkg/models"
)

// Type name fragments are matched anywhere in the declared type, so POINT and
// INTERVAL count as numeric because they contain INT.
var (
	numericTypeTokens = []string{"NUMBER", "INT", "FLOAT", "DECIMAL", "BIGINT"}
	dateTypeTokens    = []string{"DATE", "TIMESTAMP"}
)

// ClassifyType returns the lexical classes of a declared column type
func ClassifyType(declared string) models.ColumnClass {
	upper := strings.ToUpper(declared)

	var class models.ColumnClass
	if containsAny(upper, numericTypeTokens) {
		class |= models.ClassNumeric
	}
	if containsAny(upper, dateTypeTokens) {
		class |= models.ClassDateLike
	}
	if class == 0 {
		class = models.ClassOther
	}
	return class
}

// ClassifyColumns partitions column names by declared type. A type may be both
// numeric and date-like; columns that are neither go to Other.
func ClassifyColumns(columns []models.Column) models.ColumnClasses {
	var classes models.ColumnClasses
	for _, col := range columns {
		class := ClassifyType(col.DataType)
		if class.Has(models.ClassNumeric) {
			classes.Numeric = append(classes.Numeric, col.Name)
		}
		if class.Has(models.ClassDateLike) {
			classes.DateLike = append(classes.DateLike, col.Name)
		}
		if class.Has(models.ClassOther) {
			classes.Other = append(classes.Other, col.Name)
		}
	}
	return classes
}

func containsAny(s string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(s, token) {
			return true
		}
	}
	return false
}
