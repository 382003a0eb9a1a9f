package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockWebSocketConn is a mock implementation of WebSocketConnWriter.
type mockWebSocketConn struct {
	sentMessages []sentMessage
}

type sentMessage struct {
	messageType int
	data        []byte
}

func (m *mockWebSocketConn) WriteMessage(messageType int, data []byte) error {
	m.sentMessages = append(m.sentMessages, sentMessage{
		messageType: messageType,
		data:        data,
	})
	return nil
}

func (m *mockWebSocketConn) getSentMessages() []sentMessage {
	return m.sentMessages
}

func TestServer_SendWebSocketResponse(t *testing.T) {
	mockConn := &mockWebSocketConn{}
	server := &Server{}

	response := WebSocketAnalyzeResponse{
		Type:      "analyze_response",
		Status:    "processing",
		Stage:     "detect",
		Progress:  0.3,
		RequestID: "test-request-id",
	}

	server.sendWebSocketResponse(mockConn, response)

	messages := mockConn.getSentMessages()
	require.Len(t, messages, 1)

	var receivedResponse WebSocketAnalyzeResponse
	err := json.Unmarshal(messages[0].data, &receivedResponse)
	require.NoError(t, err)

	assert.Equal(t, websocket.TextMessage, messages[0].messageType)
	assert.Equal(t, response, receivedResponse)
}

func TestServer_SendWebSocketError(t *testing.T) {
	mockConn := &mockWebSocketConn{}
	server := &Server{}

	server.sendWebSocketError(mockConn, "test_error", "Test error message")

	messages := mockConn.getSentMessages()
	require.Len(t, messages, 1)

	var response WebSocketAnalyzeResponse
	err := json.Unmarshal(messages[0].data, &response)
	require.NoError(t, err)

	assert.Equal(t, websocket.TextMessage, messages[0].messageType)
	assert.Equal(t, "error", response.Type)
	assert.Equal(t, "error", response.Status)
	assert.Equal(t, "Test error message", response.Error)
	assert.Equal(t, "test_error", response.ErrorType)
}

func TestWebSocketUpgrader(t *testing.T) {
	t.Run("check origin allows any origin", func(t *testing.T) {
		allowed := upgrader.CheckOrigin(&http.Request{
			Header: http.Header{
				"Origin": []string{"http://example.com"},
			},
		})
		assert.True(t, allowed)

		allowed = upgrader.CheckOrigin(&http.Request{
			Header: http.Header{
				"Origin": []string{"https://another-domain.com"},
			},
		})
		assert.True(t, allowed)
	})

	t.Run("buffer sizes", func(t *testing.T) {
		assert.Equal(t, 1024, upgrader.ReadBufferSize)
		assert.Equal(t, 1024, upgrader.WriteBufferSize)
	})
}

// dialTestWebSocket connects a client to a test server wrapping the
// WebSocket analyze handler.
func dialTestWebSocket(t *testing.T, server *Server) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(server.analyzeWebSocketHandler))
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	return conn
}

// readWebSocketResponse reads and decodes one response frame.
func readWebSocketResponse(t *testing.T, conn *websocket.Conn) WebSocketAnalyzeResponse {
	t.Helper()

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var response WebSocketAnalyzeResponse
	require.NoError(t, json.Unmarshal(data, &response))
	return response
}

func TestServer_AnalyzeWebSocket_StageProgress(t *testing.T) {
	server := newTestServer(t, &fakeDetector{labels: personLabels()})
	conn := dialTestWebSocket(t, server)

	request := WebSocketAnalyzeRequest{
		Image: base64.StdEncoding.EncodeToString(testJPEG(t, 64, 64)),
		Options: map[string]interface{}{
			"removePeople": true,
		},
	}
	body, err := json.Marshal(request)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, body))

	// The first frame acknowledges the request.
	first := readWebSocketResponse(t, conn)
	assert.Equal(t, "analyze_response", first.Type)
	assert.Equal(t, "processing", first.Status)
	assert.InDelta(t, 0.0, first.Progress, 0.001)
	assert.NotEmpty(t, first.RequestID)

	// Stage frames arrive in pipeline order with increasing progress,
	// then a completed frame carries the result.
	var stages []string
	lastProgress := 0.0
	for {
		response := readWebSocketResponse(t, conn)
		assert.Equal(t, first.RequestID, response.RequestID)

		if response.Status == "completed" {
			assert.InDelta(t, 1.0, response.Progress, 0.001)
			require.NotNil(t, response.Result)
			assert.True(t, response.Result.PersonPresent)
			assert.True(t, response.Result.PeopleRemoved)
			assert.NotEmpty(t, response.Result.RegeneratedImageBase64)
			break
		}

		require.Equal(t, "processing", response.Status)
		assert.GreaterOrEqual(t, response.Progress, lastProgress)
		lastProgress = response.Progress
		stages = append(stages, response.Stage)
	}

	assert.Equal(t, []string{"decode", "detect", "edit", "encode"}, stages)
}

func TestServer_AnalyzeWebSocket_InvalidRequests(t *testing.T) {
	server := newTestServer(t, &fakeDetector{labels: personLabels()})
	conn := dialTestWebSocket(t, server)

	// Malformed JSON produces an error frame.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{broken")))
	response := readWebSocketResponse(t, conn)
	assert.Equal(t, "error", response.Type)
	assert.Equal(t, "invalid_request", response.ErrorType)

	// A request without image data is acknowledged, then rejected.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"image":""}`)))
	ack := readWebSocketResponse(t, conn)
	assert.Equal(t, "processing", ack.Status)

	response = readWebSocketResponse(t, conn)
	assert.Equal(t, "invalid_request", response.ErrorType)
	assert.Equal(t, "No image data provided", response.Error)

	// The connection stays usable after errors.
	request := WebSocketAnalyzeRequest{
		Image: base64.StdEncoding.EncodeToString(testJPEG(t, 32, 32)),
	}
	body, err := json.Marshal(request)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, body))

	for {
		response = readWebSocketResponse(t, conn)
		if response.Status == "completed" {
			require.NotNil(t, response.Result)
			assert.False(t, response.Result.PeopleRemoved)
			break
		}
		require.Equal(t, "processing", response.Status)
	}
}
