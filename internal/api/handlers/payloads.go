// Package handlers implements the REST endpoint handlers for the Anchor
// relay API: payload intake, single-payload submission, batch triggers, and
// operational statistics.
//
// Handlers are factories taking their collaborators explicitly, so tests can
// exercise each endpoint against an in-memory store and a fake chain client
// without standing up the full daemon. Error mapping follows the pipeline's
// taxonomy: validation errors surface as 4xx, submission failures come back
// as structured results with HTTP 200 since the request itself succeeded.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/concave-dev/anchor/internal/payload"
	"github.com/concave-dev/anchor/internal/pipeline"
	"github.com/concave-dev/anchor/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreatePayloadRequest is the intake body for a new signed payload. The
// signed content arrives complete from the upstream signer; the relay only
// assigns the record id and lifecycle fields.
type CreatePayloadRequest struct {
	PayloadType        string          `json:"payload_type" binding:"required"`
	SignerAddress      string          `json:"signer_address" binding:"required"`
	Nonce              uint64          `json:"nonce"`
	Payload            json.RawMessage `json:"payload" binding:"required"`
	PayloadHash        string          `json:"payload_hash" binding:"required"`
	StructuredDataHash string          `json:"structured_data_hash"`
	Signature          string          `json:"signature"`
	ExpiresAt          time.Time       `json:"expires_at" binding:"required"`
}

// BatchRequest triggers batch processing. Ids may be empty for retry
// batches, in which case the retryable selector fills the batch.
type BatchRequest struct {
	PayloadIDs []string `json:"payload_ids"`
	BatchID    string   `json:"batch_id"`
}

// ErrorResponse is the uniform error body for 4xx/5xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleCreatePayload persists a new signed payload in pending status.
func HandleCreatePayload(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreatePayloadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}

		p := &payload.SignedPayload{
			ID:                 uuid.NewString(),
			PayloadType:        payload.Type(req.PayloadType),
			SignerAddress:      req.SignerAddress,
			Nonce:              req.Nonce,
			Payload:            req.Payload,
			PayloadHash:        req.PayloadHash,
			StructuredDataHash: req.StructuredDataHash,
			Signature:          req.Signature,
			ExpiresAt:          req.ExpiresAt,
			Status:             payload.StatusPending,
		}

		if err := s.Save(c.Request.Context(), p); err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

// HandleGetPayload returns one payload record by id.
func HandleGetPayload(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := s.FindByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, ErrorResponse{Error: "payload not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// HandleListPayloads returns payloads filtered by the optional status query
// parameter, oldest first.
func HandleListPayloads(s store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := store.Filter{OrderByAge: true}
		if status := c.Query("status"); status != "" {
			f.Statuses = []payload.Status{payload.Status(status)}
		}

		payloads, err := s.List(c.Request.Context(), f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"payloads": payloads, "count": len(payloads)})
	}
}

// HandleSubmitPayload submits one payload through the idempotent executor.
// Validation errors map onto status codes; submission failures return a
// structured result since the request itself was processed.
func HandleSubmitPayload(ex *pipeline.SubmissionExecutor) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := ex.Submit(c.Request.Context(), c.Param("id"))
		if err != nil {
			if pipeline.IsValidationError(err) {
				c.JSON(validationStatus(err), ErrorResponse{Error: err.Error()})
				return
			}
			// Terminal submission failure: structured result, not an
			// HTTP-level error
			if result != nil {
				c.JSON(http.StatusOK, result)
				return
			}
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleVerifyPayload runs the registry's view-only signature verification
// for one payload without submitting it.
func HandleVerifyPayload(ex *pipeline.SubmissionExecutor) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		verified, err := ex.Verify(c.Request.Context(), id)
		if err != nil {
			if pipeline.IsValidationError(err) {
				c.JSON(validationStatus(err), ErrorResponse{Error: err.Error()})
				return
			}
			c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"payload_id": id, "verified": verified})
	}
}

// validationStatus maps a validation error to its HTTP status code.
func validationStatus(err error) int {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not found"):
		return http.StatusNotFound
	case strings.Contains(msg, "already in flight"):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// HandleProcessBatch runs a batch over the given payload ids.
func HandleProcessBatch(o *pipeline.BatchOrchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		if len(req.PayloadIDs) == 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "payload_ids must not be empty"})
			return
		}

		result, err := o.ProcessBatch(c.Request.Context(), req.PayloadIDs, req.BatchID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleRetryBatch retries failed payloads: the given ids, or whatever the
// retryable selector finds when the body is empty or omitted.
func HandleRetryBatch(o *pipeline.BatchOrchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BatchRequest
		// Body is optional for retry sweeps
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
				return
			}
		}

		result, err := o.RetryBatch(c.Request.Context(), req.PayloadIDs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
