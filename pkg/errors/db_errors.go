// Package errors provides database error classification for the snapshot
// history store.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// DatabaseErrorType represents the type of database error.
type DatabaseErrorType int

const (
	// ErrorTypeUnknown represents an unknown database error.
	ErrorTypeUnknown DatabaseErrorType = iota
	// ErrorTypeDuplicateKey represents a duplicate key constraint violation (MySQL 1062).
	ErrorTypeDuplicateKey
	// ErrorTypeInvalidJSON represents an invalid JSON data error (MySQL 3140-3143).
	ErrorTypeInvalidJSON
	// ErrorTypeDataTooLong represents a data too long error (MySQL 1406, 1153).
	ErrorTypeDataTooLong
	// ErrorTypeNotFound represents a record not found error.
	ErrorTypeNotFound
	// ErrorTypeConnectionError represents a database connection error.
	ErrorTypeConnectionError
)

func (t DatabaseErrorType) String() string {
	switch t {
	case ErrorTypeDuplicateKey:
		return "duplicate_key"
	case ErrorTypeInvalidJSON:
		return "invalid_json"
	case ErrorTypeDataTooLong:
		return "data_too_long"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeConnectionError:
		return "connection"
	default:
		return "unknown"
	}
}

// DatabaseError wraps a database error with classification information.
type DatabaseError struct {
	Type         DatabaseErrorType
	OriginalErr  error
	MySQLErrCode uint16
	Message      string
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	if e.MySQLErrCode > 0 {
		return fmt.Sprintf("%s (MySQL error %d): %v", e.Message, e.MySQLErrCode, e.OriginalErr)
	}
	return fmt.Sprintf("%s: %v", e.Message, e.OriginalErr)
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *DatabaseError) Unwrap() error {
	return e.OriginalErr
}

// ClassifyDBError classifies a database error into a specific error type.
//
// Snapshot versions are content hashes, so a duplicate key on insert means the
// version was already recorded:
//
//	if err := db.Create(&row).Error; err != nil {
//	    if errors.ClassifyDBError(err).Type == errors.ErrorTypeDuplicateKey {
//	        return false, nil // unchanged
//	    }
//	    return false, err
//	}
func ClassifyDBError(err error) *DatabaseError {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &DatabaseError{
			Type:        ErrorTypeNotFound,
			OriginalErr: err,
			Message:     "record not found",
		}
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return classifyMySQLError(mysqlErr)
	}

	if isConnectionError(err.Error()) {
		return &DatabaseError{
			Type:        ErrorTypeConnectionError,
			OriginalErr: err,
			Message:     "database connection error",
		}
	}

	return &DatabaseError{
		Type:        ErrorTypeUnknown,
		OriginalErr: err,
		Message:     "unknown database error",
	}
}

func classifyMySQLError(err *mysql.MySQLError) *DatabaseError {
	dbErr := &DatabaseError{
		Type:         ErrorTypeUnknown,
		OriginalErr:  err,
		MySQLErrCode: err.Number,
		Message:      "MySQL error",
	}

	switch err.Number {
	case 1062: // ER_DUP_ENTRY
		dbErr.Type = ErrorTypeDuplicateKey
		dbErr.Message = "duplicate key constraint violation"
	case 3140, 3141, 3142, 3143: // JSON-related errors
		dbErr.Type = ErrorTypeInvalidJSON
		dbErr.Message = "invalid JSON data"
	case 1406: // ER_DATA_TOO_LONG
		dbErr.Type = ErrorTypeDataTooLong
		dbErr.Message = "data too long for column"
	case 1153: // ER_NET_PACKET_TOO_LARGE, snapshot document over max_allowed_packet
		dbErr.Type = ErrorTypeDataTooLong
		dbErr.Message = "packet larger than max_allowed_packet"
	case 2002, 2003, 2006, 2013: // client connection errors
		dbErr.Type = ErrorTypeConnectionError
		dbErr.Message = "database connection error"
	}

	return dbErr
}

var connectionKeywords = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"connection lost",
	"can't connect",
	"dial tcp",
	"invalid connection",
}

func isConnectionError(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	for _, keyword := range connectionKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// IsDuplicateKeyError checks if the error is a duplicate key constraint violation.
func IsDuplicateKeyError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == ErrorTypeDuplicateKey
}

// IsNotFoundError checks if the error is a record not found error.
func IsNotFoundError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == ErrorTypeNotFound
}

// IsConnectionError checks if the error means the database is unreachable.
func IsConnectionError(err error) bool {
	dbErr := ClassifyDBError(err)
	return dbErr != nil && dbErr.Type == ErrorTypeConnectionError
}
