// Package datastore provides error handling helpers for database operations
package datastore

import (
	"fmt"
	"strings"

	"github.com/omniface/omniface-go/internal/errors"
)

// dbError creates a properly categorized database error with context.
// Corruption and full disks are always escalated to critical.
func dbError(err error, operation, priority string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	switch {
	case isDatabaseCorruption(err) || isDiskFull(err):
		builder = builder.Priority(errors.PriorityCritical)
	case priority != "":
		builder = builder.Priority(priority)
	}

	return withPairs(builder, context).Build()
}

// validationError rejects a record before it reaches the database
func validationError(message, field string, value any) error {
	return errors.Newf("%s", message).
		Component("datastore").
		Category(errors.CategoryValidation).
		Priority(errors.PriorityLow).
		Context("field", field).
		Context("value", fmt.Sprintf("%v", value)).
		Build()
}

// notFoundError wraps a missing row so callers can test it with errors.IsNotFound
func notFoundError(err error, operation string, context ...any) error {
	builder := errors.New(err).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Priority(errors.PriorityLow).
		Context("operation", operation)
	return withPairs(builder, context).Build()
}

func withPairs(builder *errors.ErrorBuilder, context []any) *errors.ErrorBuilder {
	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}
	return builder
}

func isDatabaseCorruption(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "malformed") ||
		strings.Contains(errStr, "corrupt") ||
		strings.Contains(errStr, "file is not a database")
}

func isDiskFull(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "no space") ||
		strings.Contains(errStr, "database or disk is full")
}
