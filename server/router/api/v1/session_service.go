package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/tutorsense/ai/session"
)

type createSessionRequest struct {
	UserID string `json:"userId"`
	Module string `json:"module"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	Greeting  string `json:"greeting"`
}

// CreateSession opens a new tutoring session.
func (s *APIV1Service) CreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	res, err := s.Sessions.Start(c.Request().Context(), req.UserID, req.Module)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusOK, createSessionResponse{
		SessionID: res.SessionID,
		Greeting:  res.Greeting,
	})
}

type messageRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	Reply          string  `json:"reply"`
	XPDelta        int     `json:"xpDelta"`
	CacheHit       bool    `json:"cacheHit"`
	Fallback       bool    `json:"fallback"`
	BreakSuggested bool    `json:"breakSuggested"`
	CostUSD        float64 `json:"costUsd"`
}

// SendMessage processes one learner utterance.
func (s *APIV1Service) SendMessage(c echo.Context) error {
	var req messageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	res, err := s.Sessions.Ingest(c.Request().Context(), c.Param("id"), req.Text)
	if err != nil {
		return sessionError(err)
	}

	return c.JSON(http.StatusOK, messageResponse{
		Reply:          res.Reply,
		XPDelta:        res.XPDelta,
		CacheHit:       res.CacheHit,
		Fallback:       res.Fallback,
		BreakSuggested: res.BreakSuggested,
		CostUSD:        res.CostUSD,
	})
}

type endSessionResponse struct {
	Summary *session.Summary `json:"summary"`
}

// EndSession closes a session and returns its summary.
func (s *APIV1Service) EndSession(c echo.Context) error {
	summary, err := s.Sessions.End(c.Request().Context(), c.Param("id"))
	if err != nil {
		return sessionError(err)
	}
	return c.JSON(http.StatusOK, endSessionResponse{Summary: summary})
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrSessionEnded):
		return echo.NewHTTPError(http.StatusConflict, "session already ended")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
