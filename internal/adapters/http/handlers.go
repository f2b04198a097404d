package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/sdp/v3"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Duet/internal/adapters/signal"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
)

var errRateLimited = errors.New("candidate rate limit exceeded")

type Handlers struct {
	Store   core.RecordStore
	Limiter *signal.CandidateRateLimiter
	Feed    *signal.FeedController
}

type CreateCallResponse struct {
	ID domain.CallID `json:"id"`
}

type CandidateRequest struct {
	Candidate string `json:"candidate"`
}

func (h *Handlers) CreateCall(c *gin.Context) {
	id, err := h.Store.CreateRecord(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("call_id", id.String()).Str("client", c.GetString("client_token")).Msg("call created")
	c.JSON(http.StatusCreated, CreateCallResponse{ID: id})
}

func (h *Handlers) GetCall(c *gin.Context) {
	rec, err := h.Store.Get(c.Request.Context(), callID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handlers) SetOffer(c *gin.Context) {
	h.setDescription(c, domain.DescriptionTypeOffer, h.Store.SetOffer)
}

func (h *Handlers) SetAnswer(c *gin.Context) {
	h.setDescription(c, domain.DescriptionTypeAnswer, h.Store.SetAnswer)
}

func (h *Handlers) setDescription(c *gin.Context, want string,
	set func(context.Context, domain.CallID, domain.SessionDescription) error,
) {
	var desc domain.SessionDescription
	if err := c.ShouldBindJSON(&desc); err != nil {
		writeError(c, fmt.Errorf("%w: %w", domain.ErrInvalidDescription, err))
		return
	}
	if err := validateDescription(desc, want); err != nil {
		writeError(c, err)
		return
	}
	if err := set(c.Request.Context(), callID(c), desc); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) AppendCandidate(c *gin.Context) {
	role, err := domain.ParseCandidateSide(c.Param("role"))
	if err != nil {
		writeError(c, err)
		return
	}
	var req CandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %w", domain.ErrCandidate, err))
		return
	}
	if err := core.ValidateCandidate(req.Candidate); err != nil {
		writeError(c, err)
		return
	}

	id := callID(c)
	if !h.Limiter.Allow(c.GetString("client_token") + "/" + id.String()) {
		writeError(c, errRateLimited)
		return
	}
	if err := h.Store.AppendCandidate(c.Request.Context(), id, role, req.Candidate); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) Subscribe(ctx context.Context, c *gin.Context) {
	if err := h.Feed.HandleFeed(ctx, c, callID(c)); err != nil {
		writeError(c, err)
	}
}

func (h *Handlers) sweepLimiter(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Limiter.Sweep()
		}
	}
}

func callID(c *gin.Context) domain.CallID {
	return domain.CallID(c.Param("id"))
}

// validateDescription checks the type tag and that the SDP parses.
func validateDescription(desc domain.SessionDescription, want string) error {
	if desc.Type != want {
		return fmt.Errorf("%w: type %q, want %q", domain.ErrInvalidDescription, desc.Type, want)
	}
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidDescription, err)
	}
	return nil
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAnswerBeforeOffer):
		return http.StatusConflict
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, domain.ErrInvalidDescription),
		errors.Is(err, domain.ErrCandidate):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := statusOf(err)
	ev := log.Warn()
	if code >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Int("status", code).Msg("request failed")
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}
