package tenant

import (
	"net/http"
	"strings"

	"github.com/noah-isme/bizledger/internal/common"
)

// DefaultHeader carries the business unit identifier on API requests.
const DefaultHeader = "X-Business-ID"

// Resolver resolves the business unit of a request from a header, falling back
// to a configured default business (single-tenant installs).
type Resolver struct {
	HeaderName      string
	DefaultBusiness string
}

// NewResolver returns a resolver reading headerName (DefaultHeader when empty).
func NewResolver(headerName, defaultBusiness string) *Resolver {
	if strings.TrimSpace(headerName) == "" {
		headerName = DefaultHeader
	}
	return &Resolver{
		HeaderName:      headerName,
		DefaultBusiness: strings.TrimSpace(defaultBusiness),
	}
}

// Resolve returns the raw business identifier for req.
func (r *Resolver) Resolve(req *http.Request) string {
	if r == nil || req == nil {
		return ""
	}
	if id := strings.TrimSpace(req.Header.Get(r.HeaderName)); id != "" {
		return id
	}
	return r.DefaultBusiness
}

// Middleware injects the business unit into the request context.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if id := r.Resolve(req); id != "" {
			req = req.WithContext(WithBusiness(req.Context(), id))
		}
		next.ServeHTTP(w, req)
	})
}

// Require rejects requests that carry no valid business unit.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if _, err := BusinessID(req.Context()); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BUSINESS_REQUIRED", err.Error(), nil)
			return
		}
		next.ServeHTTP(w, req)
	})
}
