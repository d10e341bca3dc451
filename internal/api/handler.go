package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"nimo/identity-platform/verification-engine/internal/contribution"
	"nimo/identity-platform/verification-engine/internal/engine"
	"nimo/identity-platform/verification-engine/internal/ledger"
)

// Handler handles HTTP requests for verification operations
type Handler struct {
	service      *engine.Service
	orchestrator *engine.Orchestrator
	bridge       *ledger.Bridge
	logger       *zap.Logger
}

// NewHandler creates a new verification handler
func NewHandler(service *engine.Service, orchestrator *engine.Orchestrator, bridge *ledger.Bridge, logger *zap.Logger) *Handler {
	return &Handler{
		service:      service,
		orchestrator: orchestrator,
		bridge:       bridge,
		logger:       logger,
	}
}

// RegisterRoutes registers verification routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/verify", h.verify)
	router.POST("/batch-verify", h.batchVerify)
	router.GET("/reward-preview", h.rewardPreview)
	router.GET("/transactions/:ref", h.transactionStatus)
}

// evidencePayload is one evidence item as submitted over HTTP
type evidencePayload struct {
	Kind        string     `json:"kind"`
	URL         string     `json:"url"`
	Description string     `json:"description"`
	CapturedAt  *time.Time `json:"captured_at"`
	Author      string     `json:"author"`
}

// contributionPayload is the wire shape of a contribution
type contributionPayload struct {
	ID          uuid.UUID         `json:"id"`
	SubmitterID uuid.UUID         `json:"submitter_id"`
	Category    string            `json:"category"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Impact      string            `json:"impact"`
	Evidence    []evidencePayload `json:"evidence"`
	CreatedAt   time.Time         `json:"created_at"`
}

// verifyPayload is the body of POST /verify and each batch item
type verifyPayload struct {
	Contribution contributionPayload               `json:"contribution"`
	Signal       *contribution.SubmitterSignal     `json:"submitter_signal"`
	Priors       []contribution.PriorContribution  `json:"prior_contributions"`
	SubmitterRef string                            `json:"submitter_ref"`
}

func (p *verifyPayload) toRequest() *engine.VerifyRequest {
	evidence := make([]contribution.Evidence, 0, len(p.Contribution.Evidence))
	for _, ev := range p.Contribution.Evidence {
		evidence = append(evidence, contribution.Evidence{
			Kind:        contribution.ParseEvidenceKind(ev.Kind),
			URL:         ev.URL,
			Description: ev.Description,
			CapturedAt:  ev.CapturedAt,
			Author:      ev.Author,
		})
	}
	return &engine.VerifyRequest{
		Contribution: &contribution.Contribution{
			ID:          p.Contribution.ID,
			SubmitterID: p.Contribution.SubmitterID,
			Category:    contribution.ParseCategory(p.Contribution.Category),
			Title:       p.Contribution.Title,
			Description: p.Contribution.Description,
			Impact:      contribution.ImpactLevel(p.Contribution.Impact),
			Evidence:    evidence,
			CreatedAt:   p.Contribution.CreatedAt,
		},
		Signal:       p.Signal,
		Priors:       p.Priors,
		SubmitterRef: p.SubmitterRef,
	}
}

// verify handles POST /api/v1/verify
func (h *Handler) verify(c *gin.Context) {
	var payload verifyPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Verify(c.Request.Context(), payload.toRequest())
	if err != nil {
		var validationErr *contribution.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": validationErr.Message,
				"field": validationErr.Field,
			})
			return
		}
		if errors.Is(err, engine.ErrBackendUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Verification failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// batchVerify handles POST /api/v1/batch-verify
func (h *Handler) batchVerify(c *gin.Context) {
	var payload struct {
		Items []verifyPayload `json:"items"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reqs := make([]*engine.VerifyRequest, len(payload.Items))
	for i := range payload.Items {
		reqs[i] = payload.Items[i].toRequest()
	}

	results, err := h.orchestrator.ProcessBatch(c.Request.Context(), reqs)
	if err != nil {
		var tooLarge *engine.ErrBatchTooLarge
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": tooLarge.Error()})
			return
		}
		h.logger.Error("Batch verification failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// rewardPreview handles GET /api/v1/reward-preview. Pure calculation, no
// side effects; usable for what-if UI.
func (h *Handler) rewardPreview(c *gin.Context) {
	confidence, err := strconv.ParseFloat(c.Query("confidence"), 64)
	if err != nil || confidence < 0 || confidence > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "confidence must be a number in [0,1]"})
		return
	}

	if nimoParam := c.Query("nimo_amount"); nimoParam != "" {
		nimo, parseErr := strconv.ParseInt(nimoParam, 10, 64)
		if parseErr != nil || nimo < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "nimo_amount must be a non-negative integer"})
			return
		}
		c.JSON(http.StatusOK, h.service.PreviewRewardFromAmount(nimo, confidence))
		return
	}

	category := contribution.ParseCategory(c.Query("category"))
	c.JSON(http.StatusOK, h.service.PreviewReward(confidence, category))
}

// transactionStatus handles GET /api/v1/transactions/:ref
func (h *Handler) transactionStatus(c *gin.Context) {
	ref := c.Param("ref")
	status, err := h.bridge.GetStatus(c.Request.Context(), ref)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ref": ref, "status": status})
}
