package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/termin-manager/internal/queue"
	"github.com/iliyamo/termin-manager/internal/repository"
	queue_publisher "github.com/iliyamo/termin-manager/internal/service"
)

// stateCacheTTL bounds how stale a cached state read may be. Writes
// invalidate the key anyway; the TTL only covers invalidation failures.
const stateCacheTTL = 30 * time.Second

type stateResp struct {
	OrgID     string          `json:"org_id"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
	UpdatedBy string          `json:"updated_by,omitempty"`
}

type putStateReq struct {
	Data json.RawMessage `json:"data"`
}

// GetState returns the org's latest state row. Reads are served from Redis
// when possible; a push from any device invalidates the cached row.
func (h *SyncHandler) GetState(c echo.Context) error {
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
		if raw, err := h.Cache.Get(ctx, stateCacheKey(orgID)).Bytes(); err == nil && len(raw) > 0 {
			return c.JSONBlob(http.StatusOK, raw)
		}
	}

	row, err := h.States.Get(ctx, orgID)
	if err != nil {
		if err == sql.ErrNoRows {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no state for this org"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load state failed"})
	}

	resp := stateResp{OrgID: row.OrgID, Data: row.Data, UpdatedAt: row.UpdatedAt, UpdatedBy: row.UpdatedBy}
	if h.Cache != nil {
		if raw, err := json.Marshal(resp); err == nil {
			_ = h.Cache.SetEx(ctx, stateCacheKey(orgID), raw, stateCacheTTL).Err()
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// PutState replaces the org's state row with the posted blob and returns
// the server-assigned timestamp clients use for last-write-wins decisions.
// The cached read is invalidated and an audit event is published, best
// effort, to the sync.pushed queue.
func (h *SyncHandler) PutState(c echo.Context) error {
	uid, err := currentUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orgID := c.Param("id")

	var req putStateReq
	if err := c.Bind(&req); err != nil || len(req.Data) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "data required"})
	}
	if !json.Valid(req.Data) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "data must be valid JSON"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Orgs.RoleInOrg(ctx, uid, orgID); err != nil {
		if err == repository.ErrForbidden {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "not a member of this org"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "membership check failed"})
	}

	stamp, err := h.States.Upsert(ctx, orgID, req.Data, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save state failed"})
	}

	if h.Cache != nil {
		_ = h.Cache.Del(ctx, stateCacheKey(orgID)).Err()
	}

	// Counting slots/bookings is for the audit line only; any blob shape is
	// accepted and stored as-is.
	var counts struct {
		Slots    []json.RawMessage `json:"slots"`
		Bookings []json.RawMessage `json:"bookings"`
	}
	_ = json.Unmarshal(req.Data, &counts)
	go func(ev queue.StatePushedEvent) {
		pubCtx, pubCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer pubCancel()
		if err := queue_publisher.PublishStatePushed(pubCtx, ev); err != nil {
			log.Printf("sync: publish state pushed event failed: %v", err)
		}
	}(queue.StatePushedEvent{
		OrgID:     orgID,
		UserID:    uid,
		Slots:     len(counts.Slots),
		Bookings:  len(counts.Bookings),
		SizeBytes: len(req.Data),
		UpdatedAt: stamp.UTC().Format(time.RFC3339Nano),
	})

	return c.JSON(http.StatusOK, echo.Map{"updated_at": stamp})
}
