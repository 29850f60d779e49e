package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"crystalgate/internal/middleware"
	"crystalgate/internal/querybudget"
	"crystalgate/internal/quota"

	"github.com/danielgtaylor/huma/v2"
)

// Helper to extract user ID from context (injected by auth middleware)
func getUserIDFromContext(ctx context.Context) (string, error) {
	userID := middleware.UserID(ctx)
	if userID == "" {
		return "", huma.Error401Unauthorized("User ID not found in context")
	}
	return userID, nil
}

// gateError converts quota rejections and query budget failures into API errors. It returns nil for
// any other error so callers can map their own service errors.
func gateError(err error) error {
	var rej *quota.Rejection
	if errors.As(err, &rej) {
		status := huma.NewError(rej.GetStatus(), rej.Message, &huma.ErrorDetail{
			Message:  "rejected by quota gate",
			Location: "reason",
			Value:    string(rej.Reason),
		})
		if secs := rej.RetryAfterSeconds(); secs > 0 {
			return huma.ErrorWithHeaders(status, http.Header{"Retry-After": []string{strconv.Itoa(secs)}})
		}
		return status
	}
	if errors.Is(err, querybudget.ErrExceeded) {
		return huma.Error500InternalServerError("Internal error: Too many database operations")
	}
	return nil
}
