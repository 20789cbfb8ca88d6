package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialTestSocket(t *testing.T, e *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(e.URL, "http") + "/ws/rmbg"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWebsocket_RemoveBackground(t *testing.T) {
	e, _ := newTestEcho(t, testConfig())
	server := httptest.NewServer(e)
	defer server.Close()

	conn := dialTestSocket(t, server)

	frame := ImageFrame{
		ID:    7,
		Name:  "shirt.png",
		Bytes: base64.StdEncoding.EncodeToString(shirtPNG(t)),
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("Failed to marshal frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("Failed to send frame: %v", err)
	}

	messageType, response, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	if messageType != websocket.TextMessage {
		t.Fatalf("Expected text frame, got type %d", messageType)
	}

	var reply ImageFrame
	if err := json.Unmarshal(response, &reply); err != nil {
		t.Fatalf("Failed to parse response frame: %v", err)
	}
	if reply.ID != 7 {
		t.Errorf("Expected echoed ID 7, got %d", reply.ID)
	}
	if reply.Name != "shirt.png" {
		t.Errorf("Expected echoed name 'shirt.png', got %q", reply.Name)
	}

	decoded, err := base64.StdEncoding.DecodeString(reply.Bytes)
	if err != nil {
		t.Fatalf("Response bytes are not valid base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(decoded))
	if err != nil {
		t.Fatalf("Response is not a PNG: %v", err)
	}
	if img.Bounds().Empty() {
		t.Error("Expected non-empty processed image")
	}
}

func TestWebsocket_MultipleFrames(t *testing.T) {
	e, _ := newTestEcho(t, testConfig())
	server := httptest.NewServer(e)
	defer server.Close()

	conn := dialTestSocket(t, server)
	encoded := base64.StdEncoding.EncodeToString(shirtPNG(t))

	for i := 1; i <= 3; i++ {
		payload, err := json.Marshal(ImageFrame{ID: i, Name: "item", Bytes: encoded})
		if err != nil {
			t.Fatalf("Failed to marshal frame %d: %v", i, err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			t.Fatalf("Failed to send frame %d: %v", i, err)
		}

		_, response, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Failed to read response %d: %v", i, err)
		}
		var reply ImageFrame
		if err := json.Unmarshal(response, &reply); err != nil {
			t.Fatalf("Failed to parse response %d: %v", i, err)
		}
		if reply.ID != i {
			t.Errorf("Expected echoed ID %d, got %d", i, reply.ID)
		}
	}
}

func TestWebsocket_ErrorClosesConnection(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{
			name:    "Malformed JSON",
			payload: `{"id": 1,`,
		},
		{
			name:    "Invalid base64",
			payload: `{"id": 1, "name": "x", "bytes": "$$$not-base64$$$"}`,
		},
		{
			name:    "Undecodable image",
			payload: `{"id": 1, "name": "x", "bytes": "` + base64.StdEncoding.EncodeToString([]byte("not an image")) + `"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEcho(t, testConfig())
			server := httptest.NewServer(e)
			defer server.Close()

			conn := dialTestSocket(t, server)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.payload)); err != nil {
				t.Fatalf("Failed to send frame: %v", err)
			}

			// First an error text frame, then the close handshake
			messageType, response, err := conn.ReadMessage()
			if err != nil {
				t.Fatalf("Expected an error text frame, got read error: %v", err)
			}
			if messageType != websocket.TextMessage {
				t.Fatalf("Expected text frame, got type %d", messageType)
			}
			if !strings.HasPrefix(string(response), "Error processing image data:") {
				t.Errorf("Unexpected error frame: %q", response)
			}

			_, _, err = conn.ReadMessage()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Errorf("Expected normal close after error frame, got %v", err)
			}
		})
	}
}

func TestWebsocket_ProcessFrame(t *testing.T) {
	_, service := newTestEcho(t, testConfig())

	t.Run("Round trip", func(t *testing.T) {
		payload, err := json.Marshal(ImageFrame{
			ID:    3,
			Name:  "jacket",
			Bytes: base64.StdEncoding.EncodeToString(shirtPNG(t)),
		})
		if err != nil {
			t.Fatalf("Failed to marshal frame: %v", err)
		}

		response, err := service.processFrame(payload)
		if err != nil {
			t.Fatalf("processFrame failed: %v", err)
		}

		var reply ImageFrame
		if err := json.Unmarshal(response, &reply); err != nil {
			t.Fatalf("Failed to parse response: %v", err)
		}
		if reply.ID != 3 || reply.Name != "jacket" {
			t.Errorf("Expected echoed envelope, got %+v", reply)
		}
	})

	t.Run("Empty frame", func(t *testing.T) {
		if _, err := service.processFrame([]byte(`{}`)); err == nil {
			t.Error("Expected error for frame without image data")
		}
	})
}
