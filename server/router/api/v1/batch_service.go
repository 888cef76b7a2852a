package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/tutorsense/ai/batch"
	"github.com/hrygo/tutorsense/store/catalog"
)

type batchRequest struct {
	Type     string `json:"type"`   // quiz, fact, joke, challenge
	Module   string `json:"module"` // math, science, reading
	Count    int    `json:"count"`
	Priority string `json:"priority"` // low, medium, high
}

type batchResponse struct {
	RequestID string `json:"requestId"`
}

// EnqueueBatch queues a content generation request.
func (s *APIV1Service) EnqueueBatch(c echo.Context) error {
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	priority := batch.PriorityLow
	switch req.Priority {
	case "", "low":
	case "medium":
		priority = batch.PriorityMedium
	case "high":
		priority = batch.PriorityHigh
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown priority: "+req.Priority)
	}

	id, err := s.Batcher.Enqueue(catalog.ContentType(req.Type), req.Module, req.Count, priority)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, batchResponse{RequestID: id})
}
