package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeTimeout = 30 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// ImageFrame is the JSON envelope exchanged on /ws/rmbg. Bytes carries
// base64-encoded image data in both directions; the response always holds a
// PNG.
type ImageFrame struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Bytes string `json:"bytes"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 << 10,
	WriteBufferSize: 64 << 10,
	// The service is an API backend; origin policy is left to the deployment
	CheckOrigin: func(r *http.Request) bool { return true },
}

// removeBackgroundSocketHandler streams background removal: every inbound
// text frame is an ImageFrame, every reply the same envelope with the
// processed PNG. On a malformed frame or pipeline failure an error text
// frame is sent and the connection is closed.
func (s *APIService) removeBackgroundSocketHandler(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err, "remote_ip", c.RealIP())
		return err
	}
	defer func() {
		_ = conn.Close()
	}()

	slog.Info("websocket session opened", "remote_ip", c.RealIP())

	conn.SetReadLimit(s.config.Limits.MaxUploadBytes * 2)
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go pingLoop(conn, done)

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("websocket read failed", "error", err)
			}
			return nil
		}
		if messageType != websocket.TextMessage {
			s.closeWithError(conn, "expected a text frame")
			return nil
		}

		response, err := s.processFrame(payload)
		if err != nil {
			s.metrics.WebsocketFrames.WithLabelValues("error").Inc()
			s.closeWithError(conn, fmt.Sprintf("Error processing image data: %v", err))
			return nil
		}
		s.metrics.WebsocketFrames.WithLabelValues("ok").Inc()

		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, response); err != nil {
			slog.Warn("websocket write failed", "error", err)
			return nil
		}
	}
}

func (s *APIService) processFrame(payload []byte) ([]byte, error) {
	var frame ImageFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}

	imageBytes, err := base64.StdEncoding.DecodeString(frame.Bytes)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image data: %w", err)
	}

	start := time.Now()
	processed, err := s.core.ProcessImage(imageBytes)
	s.metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.ImagesProcessed.WithLabelValues("error").Inc()
		return nil, err
	}
	s.metrics.ImagesProcessed.WithLabelValues("ok").Inc()

	response := ImageFrame{
		ID:    frame.ID,
		Name:  frame.Name,
		Bytes: base64.StdEncoding.EncodeToString(processed),
	}
	return json.Marshal(response)
}

// closeWithError mirrors the original endpoint's behavior: a plain error
// text frame followed by connection close.
func (s *APIService) closeWithError(conn *websocket.Conn, message string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
		slog.Warn("websocket error write failed", "error", err)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}

func pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
