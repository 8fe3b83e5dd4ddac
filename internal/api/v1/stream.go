package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/omniface/omniface-go/internal/logger"
	"github.com/omniface/omniface-go/internal/session"
)

// Constants for WebSocket connections
const (
	// Time allowed to write a message to the client
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the client
	pongWait = 60 * time.Second

	// Send pings to client with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from client
	maxMessageSize = 512

	// Frames queued for the writer before the session loop blocks
	sendBuffer = 2
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	// origins are enforced by the CORS allow-list on the REST side; the
	// stream is authorised by its token
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamClient owns one websocket connection for the lifetime of a session
type streamClient struct {
	conn   *websocket.Conn
	send   chan []byte
	cancel context.CancelFunc
	log    logger.Logger
}

// HandleRecognitionStream handles GET /api/v1/recognition/ws?token=&cam_id=&mode=
func (c *Controller) HandleRecognitionStream(ctx echo.Context) error {
	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		// the upgrader already answered with an HTTP error
		GetLogger().Warn("websocket upgrade failed",
			logger.String("ip", ctx.RealIP()),
			logger.Error(err))
		return nil
	}

	if !c.trackStream() {
		closeConn(conn, websocket.CloseGoingAway, "server shutting down")
		return nil
	}
	defer c.wg.Done()

	log := GetLogger().With(logger.String("ip", ctx.RealIP()))

	tenantID, err := c.Tokens.Validate(ctx.QueryParam("token"))
	if err != nil {
		log.Info("stream rejected", logger.Error(err))
		closeConn(conn, session.CloseInvalidToken, "invalid token")
		return nil
	}

	mode := session.ModeAttendance
	if raw := ctx.QueryParam("mode"); raw != "" {
		if mode, err = session.ParseMode(raw); err != nil {
			closeConn(conn, session.CloseBadRequest, "invalid mode")
			return nil
		}
	}

	cameraID := 0
	if raw := ctx.QueryParam("cam_id"); raw != "" {
		if cameraID, err = strconv.Atoi(raw); err != nil || cameraID < 0 {
			closeConn(conn, session.CloseBadRequest, "invalid cam_id")
			return nil
		}
	}

	streamCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	s := c.Engine.NewSession(tenantID, cameraID, mode)
	streamCtx = logger.WithTraceID(streamCtx, s.ID)
	if err := s.Start(streamCtx); err != nil {
		c.failStart(streamCtx, conn, err)
		return nil
	}
	defer s.Close()

	client := &streamClient{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		cancel: cancel,
		log: log.WithContext(streamCtx).With(
			logger.Uint64("tenant_id", uint64(tenantID))),
	}

	var pumps sync.WaitGroup
	pumps.Add(2)
	go func() {
		defer pumps.Done()
		client.writePump()
	}()
	go func() {
		defer pumps.Done()
		client.readPump()
	}()

	if err := s.Run(streamCtx, client); err != nil {
		client.log.Error("stream ended with error", logger.Error(err))
	}

	close(client.send)
	pumps.Wait()
	return nil
}

// failStart reports a session startup failure: one error message, a pause,
// then a close frame with the code matching the failure
func (c *Controller) failStart(ctx context.Context, conn *websocket.Conn, err error) {
	detail := "internal error"
	code := session.CloseCode(err)
	switch code {
	case session.CloseModelMissing:
		detail = "no trained model for this tenant"
	case session.CloseCameraFailure:
		detail = "camera unavailable"
	}

	if code != session.CloseInternal {
		detail += ": " + err.Error()
	}

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if werr := conn.WriteJSON(session.NewErrorMessage(detail)); werr == nil {
		t := time.NewTimer(c.ErrorCloseDelay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}
	closeConn(conn, code, detail)
}

// closeConn sends a close frame with code and closes the connection
func closeConn(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, truncateReason(text))
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}

// truncateReason keeps a close reason inside the 123 byte control frame limit
func truncateReason(text string) string {
	const maxReason = 123
	if len(text) <= maxReason {
		return text
	}
	return text[:maxReason]
}

// SendFrame implements session.Sink by handing the encoded frame to the writer
func (client *streamClient) SendFrame(ctx context.Context, msg *session.FrameMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case client.send <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writePump pumps messages from the session to the WebSocket connection
func (client *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.cancel()
		_ = client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// the session ended
				_ = client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				client.log.Debug("frame write failed", logger.Error(err))
				client.drain()
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.drain()
				return
			}
		}
	}
}

// drain discards queued frames until the session closes the channel
func (client *streamClient) drain() {
	client.cancel()
	for range client.send {
	}
}

// readPump consumes client messages so control frames are processed and
// cancels the session when the client goes away
func (client *streamClient) readPump() {
	defer client.cancel()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				client.log.Debug("stream read ended", logger.Error(err))
			}
			return
		}
	}
}
