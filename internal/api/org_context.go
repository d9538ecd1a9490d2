package api

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/ignite/outreach-engine/internal/pkg/httputil"
)

// OrgContextKey is the key for storing the organization id in the request
// context.
type OrgContextKey struct{}

// GetOrgIDFromContext returns the organization id set by RequireOrg.
func GetOrgIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(OrgContextKey{}).(string)
	return id
}

// orgIDFromRequest resolves the caller's organization.
// Priority: 1. X-Organization-ID header, 2. org_id query param, 3. DEFAULT_ORG_ID in dev mode.
func orgIDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Organization-ID")); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.URL.Query().Get("org_id")); id != "" {
		return id
	}
	devMode := os.Getenv("DEV_MODE") == "true" || os.Getenv("ENVIRONMENT") == "development"
	if devMode {
		return os.Getenv("DEFAULT_ORG_ID")
	}
	return ""
}

// RequireOrg rejects requests without an organization and stores it in the
// request context.
func RequireOrg(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := orgIDFromRequest(r)
		if orgID == "" {
			httputil.Error(w, http.StatusUnauthorized, "organization ID required")
			return
		}
		ctx := context.WithValue(r.Context(), OrgContextKey{}, orgID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
