package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"

	"github.com/MeKo-Tech/vanish/internal/pipeline"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow connections from any origin in development
		// In production, you should check against allowed origins
		return true
	},
}

// WebSocketAnalyzeRequest represents an analysis request via WebSocket. The
// image is base64, in the same forms /analyze accepts.
type WebSocketAnalyzeRequest struct {
	Image   string                 `json:"image"`
	Options map[string]interface{} `json:"options,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// WebSocketAnalyzeResponse represents an analysis response via WebSocket.
type WebSocketAnalyzeResponse struct {
	Type      string         `json:"type"`
	Status    string         `json:"status"` // "processing", "completed", "error"
	Stage     string         `json:"stage,omitempty"`
	Progress  float64        `json:"progress,omitempty"`
	Result    *AnalyzeResult `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorType string         `json:"error_type,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// stageProgress maps pipeline stages to the coarse progress fractions
// reported to WebSocket clients.
var stageProgress = map[string]float64{
	pipeline.StageDecode: 0.1,
	pipeline.StageDetect: 0.3,
	pipeline.StageEdit:   0.6,
	pipeline.StageEncode: 0.8,
}

// analyzeWebSocketHandler handles WebSocket connections for streaming
// analysis with per-stage progress.
func (s *Server) analyzeWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)

	s.handleWebSocketConnection(r.Context(), conn)
}

// handleWebSocketConnection processes messages from a WebSocket connection.
func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn) {
	// Set read deadline to prevent hanging connections
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// Send ping messages to keep connection alive. The done channel stops
	// the pinger when the read loop exits.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			break
		}

		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(ctx, conn, data)
		}
	}
}

// handleWebSocketMessage processes a single WebSocket request.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn *websocket.Conn, data []byte) {
	var req WebSocketAnalyzeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}

	// Generate a request ID for tracking
	requestID := ksuid.New().String()

	// Send processing start message
	s.sendWebSocketResponse(conn, WebSocketAnalyzeResponse{
		Type:      "analyze_response",
		Status:    "processing",
		Progress:  0.0,
		RequestID: requestID,
	})

	s.processWebSocketAnalyze(ctx, conn, req, requestID)
}

// processWebSocketAnalyze runs one analysis request, streaming stage
// progress as the pipeline advances.
func (s *Server) processWebSocketAnalyze(ctx context.Context, conn *websocket.Conn,
	req WebSocketAnalyzeRequest, requestID string,
) {
	if req.Image == "" {
		s.sendWebSocketError(conn, "invalid_request", "No image data provided")
		return
	}

	imageData, err := decodeBase64Image(req.Image)
	if err != nil {
		s.sendWebSocketError(conn, "invalid_request", "Invalid base64 image data")
		return
	}

	if s.pipeline == nil {
		s.sendWebSocketError(conn, "processing_error", "Analysis pipeline not initialized")
		return
	}

	opts := s.extractOptions(req.Options)
	opts.OnStage = func(stage string) {
		s.sendWebSocketResponse(conn, WebSocketAnalyzeResponse{
			Type:      "analyze_response",
			Status:    "processing",
			Stage:     stage,
			Progress:  stageProgress[stage],
			RequestID: requestID,
		})
	}

	res, err := s.pipeline.AnalyzeContext(ctx, imageData, opts)
	if err != nil {
		analyzeRequestsTotal.WithLabelValues("websocket", "error").Inc()
		s.sendWebSocketError(conn, "processing_error", fmt.Sprintf("Failed because of: %v", err))
		return
	}

	recordAnalysisMetrics("websocket", res)

	s.sendWebSocketResponse(conn, WebSocketAnalyzeResponse{
		Type:      "analyze_response",
		Status:    "completed",
		Progress:  1.0,
		Result:    buildAnalyzeResult(res),
		RequestID: requestID,
	})
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketAnalyzeResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, errorType, message string) {
	response := WebSocketAnalyzeResponse{
		Type:      "error",
		Status:    "error",
		Error:     message,
		ErrorType: errorType,
	}

	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal WebSocket error response", "error", err)
		return
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket error message", "error", err)
		return
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
}
