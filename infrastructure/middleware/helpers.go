// Package middleware provides HTTP middleware for the service layer.
package middleware

import (
	"context"

	"github.com/nodewatch/storj-node-monitor/infrastructure/errors"
	"github.com/nodewatch/storj-node-monitor/infrastructure/logging"
)

// GetUserID extracts an authenticated user ID from context, if the request
// pipeline set one. The management API has no user accounts, so this is
// almost always empty and rate limiting falls back to client IP.
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// errInternal builds the structured error recovery reports to the client
// after a panic.
func errInternal(message string, err error) *errors.ServiceError {
	return errors.Internal(message, err)
}
