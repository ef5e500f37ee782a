package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/vidqa/internal/pipeline"
)

// QueryRequest is the POST /api/query payload.
type QueryRequest struct {
	Question     string `json:"question"`
	VideoID      string `json:"video_id"`
	SessionToken string `json:"session_token"`
	TopK         int    `json:"top_k"`
	Mode         string `json:"mode"`
}

// SessionHistoryResponse is the GET /api/sessions/:token payload.
type SessionHistoryResponse struct {
	SessionToken string           `json:"session_token"`
	Messages     []SessionMessage `json:"messages"`
}

// SessionMessage is one persisted message in a session history.
type SessionMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	LatencyMs int64     `json:"latency_ms,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}
	mode := pipeline.Mode(req.Mode)
	switch mode {
	case pipeline.ModeSpeed, pipeline.ModeQuality, pipeline.ModeBalanced:
	case "":
		mode = pipeline.ModeBalanced
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "mode must be speed, quality or balanced")
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.DefaultTopK
	}
	res := s.Pipeline.Query(c.Request().Context(), pipeline.Request{
		Question:     req.Question,
		VideoID:      req.VideoID,
		SessionToken: req.SessionToken,
		TopK:         topK,
		Mode:         mode,
	})
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleSessionHistory(c echo.Context) error {
	if s.History == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "session persistence not configured")
	}
	token := c.Param("token")
	msgs, err := s.History.ListMessages(c.Request().Context(), token)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if len(msgs) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	out := SessionHistoryResponse{SessionToken: token, Messages: make([]SessionMessage, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, SessionMessage{
			Role:      m.Role,
			Content:   m.Content,
			LatencyMs: m.LatencyMs,
			CreatedAt: m.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleIndexRefresh(c echo.Context) error {
	if s.Index == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "lexical index not configured")
	}
	if err := s.Index.Refresh(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"indexed": s.Index.Len()})
}
