package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/termin-manager/internal/repository"
)

type createBackupReq struct {
	Snapshot json.RawMessage `json:"snapshot"`
}

type backupResp struct {
	ID        int64           `json:"id"`
	OrgID     string          `json:"org_id"`
	Snapshot  json.RawMessage `json:"snapshot"`
	CreatedAt time.Time       `json:"created_at"`
	CreatedBy string          `json:"created_by,omitempty"`
}

// CreateBackup appends a server-side backup row for the org.
func (h *SyncHandler) CreateBackup(c echo.Context) error {
	uid, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orgID := c.Param("id")

	var req createBackupReq
	if err := c.Bind(&req); err != nil || len(req.Snapshot) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "snapshot required"})
	}
	if !json.Valid(req.Snapshot) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "snapshot must be valid JSON"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Orgs.RoleInOrg(ctx, uid, orgID); err != nil {
		if err == repository.ErrForbidden {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "not a member of this org"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "membership check failed"})
	}

	id, err := h.Backups.Insert(ctx, orgID, req.Snapshot, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save backup failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": id})
}

// ListBackups returns the org's most recent backups, newest first. The
// optional ?limit= query parameter caps the page size (default 10, max 50).
func (h *SyncHandler) ListBackups(c echo.Context) error {
	uid, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orgID := c.Param("id")

	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 50 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Orgs.RoleInOrg(ctx, uid, orgID); err != nil {
		if err == repository.ErrForbidden {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "not a member of this org"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "membership check failed"})
	}

	rows, err := h.Backups.ListForOrg(ctx, orgID, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list backups failed"})
	}
	out := make([]backupResp, 0, len(rows))
	for _, b := range rows {
		out = append(out, backupResp{ID: b.ID, OrgID: b.OrgID, Snapshot: b.Snapshot, CreatedAt: b.CreatedAt, CreatedBy: b.CreatedBy})
	}
	return c.JSON(http.StatusOK, echo.Map{"backups": out})
}

// GetBackup loads a single backup row by id. The caller must be a member of
// the org the backup belongs to; a backup of a foreign org answers 404
// rather than 403 so ids cannot be probed.
func (h *SyncHandler) GetBackup(c echo.Context) error {
	uid, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid backup id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	b, err := h.Backups.Get(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "backup not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load backup failed"})
	}
	if _, err := h.Orgs.RoleInOrg(ctx, uid, b.OrgID); err != nil {
		if err == repository.ErrForbidden {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "backup not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "membership check failed"})
	}
	return c.JSON(http.StatusOK, backupResp{ID: b.ID, OrgID: b.OrgID, Snapshot: b.Snapshot, CreatedAt: b.CreatedAt, CreatedBy: b.CreatedBy})
}
