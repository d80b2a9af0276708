package connector

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/snowflakedb/gosnowflake"
)

var (
	// ErrConnectivity means the warehouse could not be reached or refused the credentials
	ErrConnectivity = errors.New("connectivity failure")
	// ErrQuery means the warehouse rejected or failed the query
	ErrQuery = errors.New("query failure")
	// ErrEmptyResult means the query succeeded but returned no rows
	ErrEmptyResult = errors.New("empty result")
	// ErrInvalidIdentifier means a schema, table or column name failed validation
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrUnavailable means the data needed for a summary could not be retrieved at all
	ErrUnavailable = errors.New("data unavailable")
)

// ErrorKind classifies a QueryError
type ErrorKind int

const (
	KindQuery ErrorKind = iota
	KindConnectivity
	KindEmpty
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindEmpty:
		return "empty result"
	default:
		return "query"
	}
}

// QueryError is the typed failure returned by the connector
type QueryError struct {
	Kind  ErrorKind
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	if e.Err == nil {
		if e.Kind == KindEmpty {
			return "query returned no rows"
		}
		return e.Kind.String() + " failure"
	}
	return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error that corresponds to the error kind
func (e *QueryError) Is(target error) bool {
	switch e.Kind {
	case KindConnectivity:
		return target == ErrConnectivity
	case KindEmpty:
		return target == ErrEmptyResult
	default:
		return target == ErrQuery
	}
}

func newQueryError(kind ErrorKind, query string, err error) *QueryError {
	return &QueryError{Kind: kind, Query: strings.TrimSpace(query), Err: err}
}

// IsNoData reports whether err should be shown to the user as "no data available"
// rather than as a hard failure
func IsNoData(err error) bool {
	return errors.Is(err, ErrEmptyResult) || errors.Is(err, ErrConnectivity) ||
		errors.Is(err, ErrQuery) || errors.Is(err, ErrUnavailable)
}

// classifyKind decides whether a driver error is a connectivity or a query failure
func classifyKind(err error) ErrorKind {
	if err == nil {
		return KindQuery
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, ErrConnectivity) {
		return KindConnectivity
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindConnectivity
	}

	var sfErr *gosnowflake.SnowflakeError
	if errors.As(err, &sfErr) {
		if isConnectionState(sfErr.SQLState) {
			return KindConnectivity
		}
		return KindQuery
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		// 1044/1045: access denied
		if myErr.Number == 1044 || myErr.Number == 1045 || isConnectionState(string(myErr.SQLState[:])) {
			return KindConnectivity
		}
		return KindQuery
	}

	if errors.Is(err, context.DeadlineExceeded) && strings.Contains(err.Error(), "dial") {
		return KindConnectivity
	}
	return KindQuery
}

// SQLSTATE class 08 is connection exception, 28 is invalid authorization
func isConnectionState(state string) bool {
	return strings.HasPrefix(state, "08") || strings.HasPrefix(state, "28")
}

// NewEmptyResultError reports that query succeeded without returning rows
func NewEmptyResultError(query string) error {
	return newQueryError(KindEmpty, query, nil)
}
