package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrBusinessMissing indicates no business unit was found in context.
	ErrBusinessMissing = errors.New("business unit missing")
	// ErrBusinessInvalid indicates the business identifier is not a UUID.
	ErrBusinessInvalid = errors.New("business unit invalid")
)

type contextKey string

const businessContextKey contextKey = "business.id"

// WithBusiness stores the business identifier inside the context.
func WithBusiness(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, businessContextKey, id)
}

// FromContext extracts the raw business identifier if present.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(businessContextKey).(string)
	if !ok {
		return "", false
	}
	id = strings.TrimSpace(id)
	return id, id != ""
}

// BusinessID returns the parsed business identifier of ctx.
func BusinessID(ctx context.Context) (uuid.UUID, error) {
	raw, ok := FromContext(ctx)
	if !ok {
		return uuid.Nil, ErrBusinessMissing
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrBusinessInvalid, err)
	}
	return id, nil
}

// PrefixKey namespaces a cache or lock key per business.
func PrefixKey(businessID, key string) string {
	if businessID == "" {
		return key
	}
	return businessID + ":" + key
}
