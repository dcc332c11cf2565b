// Package pool provides REST API handlers for submitting pool reports and
// reading the stored consensus. Authentication, rate limiting, and caching
// live in middleware outside this package; handlers only expect the
// authenticated user id to arrive in the X-User-ID header.
package pool

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wynnsource/loot-consensus/internal/rotation"
	"github.com/wynnsource/loot-consensus/internal/service/consensus"
	"github.com/wynnsource/loot-consensus/internal/service/ingest"
	"github.com/wynnsource/loot-consensus/pkg/logger"
)

// IngestService interface for submission ingestion.
type IngestService interface {
	Ingest(ctx context.Context, req ingest.Request, userID uint) (ingest.Result, error)
}

// ConsensusReader interface for the consensus read path.
type ConsensusReader interface {
	ReadConsensus(ctx context.Context, poolType rotation.PoolType, region string, rotationStart time.Time) (map[int]consensus.PageConsensus, error)
}

// PoolAdmin interface for administrative pool operations.
type PoolAdmin interface {
	PurgeRotation(poolType rotation.PoolType, rotationStart time.Time) (int64, error)
}

// Handler handles pool API requests.
type Handler struct {
	ingest    IngestService
	consensus ConsensusReader
	admin     PoolAdmin
	log       *logger.Logger
}

// NewHandler creates a new pool handler.
func NewHandler(ingestService IngestService, consensusReader ConsensusReader, admin PoolAdmin, log *logger.Logger) *Handler {
	return &Handler{
		ingest:    ingestService,
		consensus: consensusReader,
		admin:     admin,
		log:       log,
	}
}

// RegisterRoutes registers the pool routes.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	group := router.Group("/api/v1/pool")
	group.POST("/submit", h.SubmitPoolData)
	group.GET("/:type/:region", h.GetConsensus)
	group.DELETE("/:type", h.PurgeRotation)
}

type submitRequest struct {
	PoolType        string    `json:"pool_type" binding:"required"`
	Region          string    `json:"region" binding:"required"`
	Page            int       `json:"page"`
	Items           [][]byte  `json:"items" binding:"required"`
	ClientTimestamp time.Time `json:"client_timestamp" binding:"required"`
	ModVersion      string    `json:"mod_version"`
}

// SubmitPoolData ingests one pool report for the authenticated user.
func (h *Handler) SubmitPoolData(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	result, err := h.ingest.Ingest(c.Request.Context(), ingest.Request{
		PoolType:        rotation.PoolType(req.PoolType),
		Region:          req.Region,
		Page:            req.Page,
		Items:           req.Items,
		ClientTimestamp: req.ClientTimestamp,
		ModVersion:      req.ModVersion,
	}, userID)
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", userID).Msg("Failed to ingest submission")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process submission"})
		return
	}

	if !result.Accepted {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"status": "rejected",
			"reason": string(result.Reason),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "accepted",
		"outcome":       result.Outcome,
		"fuzzy":         result.Fuzzy,
		"dropped_items": result.DroppedItems,
	})
}

// GetConsensus returns the stored per-page consensus for a rotation. The
// rotation_start query parameter defaults to the currently active window.
func (h *Handler) GetConsensus(c *gin.Context) {
	poolType := rotation.PoolType(c.Param("type"))
	if !poolType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown pool type"})
		return
	}
	region := c.Param("region")
	if !poolType.RegionValid(region) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid region for pool type"})
		return
	}

	rotationStart, ok := h.rotationStart(c, poolType)
	if !ok {
		return
	}

	pages, err := h.consensus.ReadConsensus(c.Request.Context(), poolType, region, rotationStart)
	if err != nil {
		h.log.Error().Err(err).Str("pool_type", string(poolType)).Msg("Failed to read consensus")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read consensus"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pool_type":      string(poolType),
		"region":         region,
		"rotation_start": rotationStart.UTC().Format(time.RFC3339),
		"pages":          pages,
	})
}

// PurgeRotation deletes every pool of a type for one rotation. Admin-only;
// permission checking happens in middleware.
func (h *Handler) PurgeRotation(c *gin.Context) {
	poolType := rotation.PoolType(c.Param("type"))
	if !poolType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown pool type"})
		return
	}

	raw := c.Query("rotation_start")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rotation_start is required"})
		return
	}
	rotationStart, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rotation_start"})
		return
	}

	purged, err := h.admin.PurgeRotation(poolType, rotationStart)
	if err != nil {
		h.log.Error().Err(err).Str("pool_type", string(poolType)).Msg("Failed to purge rotation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to purge rotation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"purged_pools": purged})
}

func (h *Handler) userID(c *gin.Context) (uint, bool) {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user identity"})
		return 0, false
	}
	return uint(id), true
}

func (h *Handler) rotationStart(c *gin.Context, poolType rotation.PoolType) (time.Time, bool) {
	if raw := c.Query("rotation_start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rotation_start"})
			return time.Time{}, false
		}
		return parsed, true
	}

	sched, err := rotation.ScheduleFor(poolType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve schedule"})
		return time.Time{}, false
	}
	window, err := rotation.Resolve(sched, time.Now(), 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve rotation"})
		return time.Time{}, false
	}
	return window.Start, true
}
