package handler

import (
	"net/http"
	"time"

	"github.com/5usu/depthcam/internal/frame"
	"github.com/5usu/depthcam/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	// maxFrameMessage bounds one camera envelope; 4K I420 with padding fits.
	maxFrameMessage = 32 << 20
	pongWait        = 60 * time.Second
)

// FramePublisher accepts frames for processing without blocking.
type FramePublisher interface {
	Publish(f *frame.Frame)
}

// CameraWebsocketHandler receives msgpack frame envelopes from a camera
// producer and hands each decoded frame within limits to the pipeline.
func CameraWebsocketHandler(publisher FramePublisher, limits frame.Limits, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		camera := r.URL.Query().Get("id")
		if camera == "" {
			camera = r.RemoteAddr
		}

		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		defer connection.Close()

		connection.SetReadLimit(maxFrameMessage)
		connection.SetReadDeadline(time.Now().Add(pongWait))
		connection.SetPongHandler(func(string) error {
			return connection.SetReadDeadline(time.Now().Add(pongWait))
		})

		logger.Info("Camera connected: %s", camera)

		var rejected int
		for {
			kind, msg, err := connection.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Camera disconnected: %s", camera)
				} else {
					logger.Warning("Camera %s disconnected: %v", camera, err)
				}
				return
			}
			connection.SetReadDeadline(time.Now().Add(pongWait))

			if kind != websocket.BinaryMessage {
				continue
			}
			f, err := frame.DecodeEnvelope(msg, limits)
			if err != nil {
				rejected++
				if rejected == 1 {
					logger.Warning("Camera %s sent a bad frame: %v", camera, err)
				}
				continue
			}
			publisher.Publish(f)
		}
	}
}
