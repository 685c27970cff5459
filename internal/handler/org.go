package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/termin-manager/internal/model"
	"github.com/iliyamo/termin-manager/internal/repository"
)

type membershipResp struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type createOrgReq struct {
	Name string `json:"name"`
}

// Memberships lists the caller's organizations, oldest first.
func (h *SyncHandler) Memberships(c echo.Context) error {
	uid, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rows, err := h.Orgs.MembershipsForUser(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list memberships failed"})
	}
	out := make([]membershipResp, 0, len(rows))
	for _, m := range rows {
		out = append(out, membershipResp{ID: m.OrgID, Name: m.Name, Role: m.Role})
	}
	return c.JSON(http.StatusOK, echo.Map{"memberships": out})
}

// CreateOrg creates a new organization with the caller as owner.
func (h *SyncHandler) CreateOrg(c echo.Context) error {
	uid, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createOrgReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	org, err := h.Orgs.CreateWithOwner(ctx, req.Name, uid)
	if err != nil {
		if err == repository.ErrConflict {
			return c.JSON(http.StatusConflict, echo.Map{"error": "org already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create org failed"})
	}
	return c.JSON(http.StatusCreated, membershipResp{ID: org.ID, Name: org.Name, Role: "owner"})
}

// GetBranding returns the org's branding blob, 404 when none was ever
// saved. Agents fall back to their cached copy or the built-in defaults.
func (h *SyncHandler) GetBranding(c echo.Context) error {
	uid, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orgID := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Orgs.RoleInOrg(ctx, uid, orgID); err != nil {
		if err == repository.ErrForbidden {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "not a member of this org"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "membership check failed"})
	}

	if h.Cache != nil {
		if raw, err := h.Cache.Get(ctx, brandingCacheKey(orgID)).Bytes(); err == nil && len(raw) > 0 {
			return c.JSONBlob(http.StatusOK, raw)
		}
	}

	row, err := h.Branding.Get(ctx, orgID)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no branding for this org"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load branding failed"})
	}
	if h.Cache != nil {
		_ = h.Cache.SetEx(ctx, brandingCacheKey(orgID), []byte(row.Branding), 5*time.Minute).Err()
	}
	return c.JSONBlob(http.StatusOK, row.Branding)
}

// PutBranding replaces the org's branding. Only owners and admins may edit;
// plain members can read but not write.
func (h *SyncHandler) PutBranding(c echo.Context) error {
	uid, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orgID := c.Param("id")

	var b model.Branding
	if err := c.Bind(&b); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	role, err := h.Orgs.RoleInOrg(ctx, uid, orgID)
	if err != nil {
		if err == repository.ErrForbidden {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "not a member of this org"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "membership check failed"})
	}
	if !model.RoleCanEditBranding(role) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "owner or admin role required"})
	}

	raw, err := json.Marshal(b)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid branding"})
	}
	if err := h.Branding.Upsert(ctx, orgID, raw); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save branding failed"})
	}
	if h.Cache != nil {
		_ = h.Cache.Del(ctx, brandingCacheKey(orgID)).Err()
	}
	return c.JSONBlob(http.StatusOK, raw)
}
