package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/applydraft/internal/billing"
	"github.com/applydraft/internal/jobqueue"
	"github.com/applydraft/internal/mail"
	"github.com/applydraft/internal/orchestrator"
	"github.com/applydraft/pkg/models"
)

type generateRequest struct {
	Targets      []models.Target `json:"targets"`
	SmartSubject bool            `json:"smart_subject"`
}

func (s *Server) bindBatch(c echo.Context) (*generateRequest, error) {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid generate payload")
	}
	if len(req.Targets) == 0 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "targets are required")
	}
	for i, t := range req.Targets {
		if t.Firm == "" {
			return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("target %d has no firm", i))
		}
	}
	return &req, nil
}

// checkBalance rejects a batch whose minimum cost the balance cannot cover.
func (s *Server) checkBalance(c echo.Context, targets []models.Target) error {
	user := CurrentUser(c)
	balance, err := s.credits.GetBalance(c.Request().Context(), user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	manual, searched := 0, 0
	for i := range targets {
		if targets[i].IsManual() {
			manual++
		} else {
			searched++
		}
	}
	minimum := billing.Round(float64(manual)*billing.SearchCreditsPerTarget + float64(searched)*billing.DeliveryCreditsPerTarget)
	if balance < minimum {
		return echo.NewHTTPError(http.StatusPaymentRequired,
			fmt.Sprintf("insufficient credits: batch needs at least %.3f, balance is %.3f", minimum, balance))
	}
	return nil
}

// generateBatch runs a batch synchronously and returns the full result.
func (s *Server) generateBatch(c echo.Context) error {
	user := CurrentUser(c)
	req, err := s.bindBatch(c)
	if err != nil {
		return err
	}
	if err := s.checkBalance(c, req.Targets); err != nil {
		return err
	}

	orch, err := s.orchestratorFor(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	tokens, err := s.settings.Tokens(c.Request().Context(), user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	result, newTokens, err := orch.Run(c.Request().Context(), orchestrator.BatchRequest{
		UserID:       user.ID,
		UserEmail:    user.Email,
		Project:      c.Param("project"),
		Targets:      req.Targets,
		SmartSubject: req.SmartSubject,
		Tokens:       tokens,
	}, nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.persistTokens(c, user.ID, tokens, newTokens)

	return c.JSON(http.StatusOK, result)
}

// generateBatchStream runs a batch and streams progress as server-sent
// events. The final event carries the complete batch result.
func (s *Server) generateBatchStream(c echo.Context) error {
	user := CurrentUser(c)
	req, err := s.bindBatch(c)
	if err != nil {
		return err
	}
	if err := s.checkBalance(c, req.Targets); err != nil {
		return err
	}

	orch, err := s.orchestratorFor(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	tokens, err := s.settings.Tokens(c.Request().Context(), user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	events := make(chan orchestrator.Event, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range events {
			writeSSE(resp, event)
		}
	}()

	result, newTokens, runErr := orch.Run(c.Request().Context(), orchestrator.BatchRequest{
		UserID:       user.ID,
		UserEmail:    user.Email,
		Project:      c.Param("project"),
		Targets:      req.Targets,
		SmartSubject: req.SmartSubject,
		Tokens:       tokens,
	}, events)
	close(events)
	<-done

	if runErr != nil {
		writeSSE(resp, orchestrator.Event{Type: "error", Stage: runErr.Error()})
		return nil
	}
	s.persistTokens(c, user.ID, tokens, newTokens)
	_ = result
	return nil
}

func writeSSE(resp *echo.Response, event orchestrator.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", event.Type, data)
	resp.Flush()
}

// queueBatch enqueues a batch for background execution and returns the job
// id immediately.
func (s *Server) queueBatch(c echo.Context) error {
	if s.queue == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "background queue is not configured")
	}
	user := CurrentUser(c)
	req, err := s.bindBatch(c)
	if err != nil {
		return err
	}
	if err := s.checkBalance(c, req.Targets); err != nil {
		return err
	}

	jobID, err := s.queue.QueueBatch(c.Request().Context(), jobqueue.BatchGenerateJobArgs{
		UserID:       user.ID,
		UserEmail:    user.Email,
		Project:      c.Param("project"),
		Targets:      req.Targets,
		SmartSubject: req.SmartSubject,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]any{"job_id": jobID})
}

// persistTokens stores the refreshed token pair when a batch changed it.
func (s *Server) persistTokens(c echo.Context, userID string, before, after mail.OAuthTokens) {
	if after == before {
		return
	}
	if err := s.settings.SaveTokens(c.Request().Context(), userID, after); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("persisting refreshed mail tokens")
	}
}
