package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/aryankumar/shardexec/internal/util"
)

// Error codes reported by TranslateError
const (
	ErrorCodeInvalidSQL          = "INVALID_SQL"
	ErrorCodeConstraintViolation = "CONSTRAINT_VIOLATION"
	ErrorCodeQueryTimeout        = "QUERY_TIMEOUT"
	ErrorCodeQueryCanceled       = "QUERY_CANCELED"
	ErrorCodeLimitExceeded       = "LIMIT_EXCEEDED"
	ErrorCodeDatabaseUnavailable = "DATABASE_UNAVAILABLE"
	ErrorCodeInternalError       = "INTERNAL_ERROR"
)

// Error is a backend failure classified by SQLSTATE.
type Error struct {
	Code     string
	Message  string
	Detail   string
	SQLState string
	Err      error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the driver error and the matching util sentinel, if any.
func (e *Error) Unwrap() []error {
	errs := []error{}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	switch e.Code {
	case ErrorCodeQueryTimeout:
		errs = append(errs, util.ErrTimeout)
	case ErrorCodeQueryCanceled:
		errs = append(errs, util.ErrCancelled)
	case ErrorCodeDatabaseUnavailable:
		errs = append(errs, util.ErrConnectionFailed)
	}
	return errs
}

// SQLSTATE to error code mapping. Codes not listed fall back to their class.
var sqlStateToCode = map[string]string{
	"42601": ErrorCodeInvalidSQL, // syntax_error
	"42703": ErrorCodeInvalidSQL, // undefined_column
	"42P01": ErrorCodeInvalidSQL, // undefined_table
	"42P02": ErrorCodeInvalidSQL, // undefined_parameter
	"42883": ErrorCodeInvalidSQL, // undefined_function
	"42804": ErrorCodeInvalidSQL, // datatype_mismatch

	"57014": ErrorCodeQueryTimeout, // query_canceled, raised by statement_timeout

	"53000": ErrorCodeDatabaseUnavailable, // insufficient_resources
	"53100": ErrorCodeDatabaseUnavailable, // disk_full
	"53200": ErrorCodeDatabaseUnavailable, // out_of_memory
	"53300": ErrorCodeDatabaseUnavailable, // too_many_connections
	"53400": ErrorCodeDatabaseUnavailable, // configuration_limit_exceeded
	"57P01": ErrorCodeDatabaseUnavailable, // admin_shutdown
	"57P03": ErrorCodeDatabaseUnavailable, // cannot_connect_now

	"54000": ErrorCodeLimitExceeded, // program_limit_exceeded
	"54001": ErrorCodeLimitExceeded, // statement_too_complex
}

var sqlStateClassToCode = map[string]string{
	"08": ErrorCodeDatabaseUnavailable, // connection_exception
	"22": ErrorCodeInvalidSQL,          // data_exception
	"23": ErrorCodeConstraintViolation, // integrity_constraint_violation
	"42": ErrorCodeInvalidSQL,          // syntax_error_or_access_rule_violation
	"53": ErrorCodeDatabaseUnavailable, // insufficient_resources
	"54": ErrorCodeLimitExceeded,       // program_limit_exceeded
}

// TranslateError classifies a driver error. It returns nil for nil and passes
// an already translated *Error through unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}

	var translated *Error
	if errors.As(err, &translated) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Code:    ErrorCodeQueryTimeout,
			Message: "Query execution timeout",
			Err:     err,
		}
	}

	if errors.Is(err, context.Canceled) {
		return &Error{
			Code:    ErrorCodeQueryCanceled,
			Message: "Query execution canceled",
			Err:     err,
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return translatePQError(pqErr)
	}

	return &Error{
		Code:    ErrorCodeInternalError,
		Message: err.Error(),
		Err:     err,
	}
}

func translatePQError(pqErr *pq.Error) *Error {
	sqlState := string(pqErr.Code)

	code, found := sqlStateToCode[sqlState]
	if !found && len(sqlState) >= 2 {
		code, found = sqlStateClassToCode[sqlState[:2]]
	}
	if !found {
		code = ErrorCodeInternalError
	}

	return &Error{
		Code:     code,
		Message:  pqErr.Message,
		Detail:   buildErrorDetail(pqErr),
		SQLState: sqlState,
		Err:      pqErr,
	}
}

// buildErrorDetail joins the optional parts of a server error
func buildErrorDetail(pqErr *pq.Error) string {
	detail := ""
	add := func(label, value string) {
		if value == "" {
			return
		}
		if detail != "" {
			detail += " | "
		}
		detail += label + ": " + value
	}

	add("Detail", pqErr.Detail)
	add("Hint", pqErr.Hint)
	add("Position", pqErr.Position)
	add("Constraint", pqErr.Constraint)
	return detail
}

// CodeOf returns the translated error code of err, or "" if err is not a
// translated backend error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
