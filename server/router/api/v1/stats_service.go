package v1

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/tutorsense/ai/observability/logging"
	"github.com/hrygo/tutorsense/store"
)

type archivedSession struct {
	SessionID string          `json:"sessionId"`
	Module    string          `json:"module"`
	Messages  int32           `json:"messages"`
	EndReason string          `json:"endReason"`
	Summary   json.RawMessage `json:"summary"`
}

// ListUserSessions returns a learner's archived sessions, newest first.
func (s *APIV1Service) ListUserSessions(c echo.Context) error {
	uid := c.Param("uid")
	limit := 20

	archives, err := s.Store.ListSessionArchives(c.Request().Context(), &store.FindSessionArchive{
		UID:   &uid,
		Limit: &limit,
	})
	if err != nil {
		logging.FromContext(c.Request().Context()).Error("failed to list session archives", "uid", uid, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list sessions")
	}

	out := make([]archivedSession, 0, len(archives))
	for _, a := range archives {
		out = append(out, archivedSession{
			SessionID: a.SessionID,
			Module:    a.Module,
			Messages:  a.Messages,
			EndReason: a.EndReason,
			Summary:   json.RawMessage(a.Payload),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": out})
}

type usageResponse struct {
	Day          string  `json:"day"`
	TotalCostUSD float64 `json:"totalCostUsd"`
	Records      int     `json:"records"`
}

// GetUsage reports provider spend for one day (default: today, server time).
func (s *APIV1Service) GetUsage(c echo.Context) error {
	day := c.QueryParam("day")
	if day == "" {
		day = time.Now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", day); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "day must be YYYY-MM-DD")
	}

	total, err := s.Store.SumDailyCostUSD(c.Request().Context(), day)
	if err != nil {
		logging.FromContext(c.Request().Context()).Error("failed to aggregate usage", "day", day, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to aggregate usage")
	}

	records, err := s.Store.ListUsageRecords(c.Request().Context(), &store.FindUsageRecord{Day: &day})
	if err != nil {
		logging.FromContext(c.Request().Context()).Error("failed to list usage", "day", day, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list usage")
	}

	return c.JSON(http.StatusOK, usageResponse{
		Day:          day,
		TotalCostUSD: total,
		Records:      len(records),
	})
}
