package handler // handler defines http handlers

import (
	"errors" // errors provides the sentinel used in currentUserID

	"github.com/labstack/echo/v4" // echo defines request context types
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/termin-manager/internal/repository" // repository holds the data access layer
)

// SyncHandler bundles the repositories behind the tenant-scoped endpoints:
// state push/pull, server backups, memberships and branding. Cache may be
// nil, in which case every read goes straight to the database.
type SyncHandler struct {
	States   *repository.StateRepo
	Backups  *repository.BackupRepo
	Orgs     *repository.OrgRepo
	Branding *repository.BrandingRepo
	Cache    *redis.Client
}

// NewSyncHandler constructs a SyncHandler and panics if a repository is nil.
func NewSyncHandler(states *repository.StateRepo, backups *repository.BackupRepo, orgs *repository.OrgRepo, branding *repository.BrandingRepo, cache *redis.Client) *SyncHandler {
	if states == nil || backups == nil || orgs == nil || branding == nil {
		panic("nil repository passed to NewSyncHandler")
	}
	return &SyncHandler{
		States:   states,
		Backups:  backups,
		Orgs:     orgs,
		Branding: branding,
		Cache:    cache,
	}
}

// currentUserID extracts the user_id string set by the JWT middleware.
func currentUserID(c echo.Context) (string, error) {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("invalid user_id in context")
}

// stateCacheKey and brandingCacheKey name the Redis entries the handlers
// invalidate on write. The org id keeps tenants from ever sharing a key.
func stateCacheKey(orgID string) string    { return "state:" + orgID }
func brandingCacheKey(orgID string) string { return "branding:" + orgID }
