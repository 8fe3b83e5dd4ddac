package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniface/omniface-go/internal/session"
)

func dialStream(t *testing.T, env *testEnv, params url.Values) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(env.echo)
	t.Cleanup(ts.Close)

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/recognition/ws?" + params.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	return conn
}

// expectClose reads until the server closes the stream and returns the close frame
func expectClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.ErrorAs(t, err, &ce)
		return ce
	}
}

func TestStreamRejectsBadRequests(t *testing.T) {
	env := setupTestEnvironment(t, nil)
	valid := env.token(t, 1)

	tests := []struct {
		name   string
		params url.Values
		code   int
		reason string
	}{
		{"missing token", url.Values{}, session.CloseInvalidToken, "invalid token"},
		{"forged token", url.Values{"token": {"not-a-jwt"}}, session.CloseInvalidToken, "invalid token"},
		{"unknown mode", url.Values{"token": {valid}, "mode": {"party"}}, session.CloseBadRequest, "invalid mode"},
		{"negative camera", url.Values{"token": {valid}, "cam_id": {"-1"}}, session.CloseBadRequest, "invalid cam_id"},
		{"non numeric camera", url.Values{"token": {valid}, "cam_id": {"front"}}, session.CloseBadRequest, "invalid cam_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dialStream(t, env, tt.params)
			ce := expectClose(t, conn)
			assert.Equal(t, tt.code, ce.Code)
			assert.Equal(t, tt.reason, ce.Text)
		})
	}

	assert.Zero(t, env.controller.Engine.ActiveSessions())
}

func TestStreamMissingModel(t *testing.T) {
	env := setupTestEnvironment(t, nil)

	conn := dialStream(t, env, url.Values{"token": {env.token(t, 2)}})

	kind, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)

	var msg session.ErrorMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, session.TypeError, msg.Type)
	assert.True(t, strings.HasPrefix(msg.Detail, "no trained model for this tenant"), msg.Detail)

	ce := expectClose(t, conn)
	assert.Equal(t, session.CloseModelMissing, ce.Code)

	// the camera taken before the model lookup is given back
	assert.Eventually(t, func() bool { return len(env.cameras.Stats()) == 0 },
		time.Second, 5*time.Millisecond)
}

func TestStreamDeliversFrames(t *testing.T) {
	env := setupTestEnvironment(t, nil)

	conn := dialStream(t, env, url.Values{
		"token":  {env.token(t, 1)},
		"cam_id": {"1"},
		"mode":   {"normal"},
	})

	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg session.FrameMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, session.TypeFrame, msg.Type)
	assert.Equal(t, 1, msg.CameraID)
	assert.Equal(t, session.ModeNormal, msg.Mode)
	assert.NotEmpty(t, msg.SessionID)
	require.Len(t, msg.Faces, 1)
	assert.Equal(t, "ana", msg.Faces[0].Name)
	assert.Equal(t, [4]int{20, 20, 220, 220}, msg.Faces[0].BBox)
	assert.False(t, msg.Faces[0].Registered)

	jpeg, err := base64.StdEncoding.DecodeString(msg.Frame)
	require.NoError(t, err)
	require.Greater(t, len(jpeg), 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, jpeg[:2])

	assert.Equal(t, 1, env.controller.Engine.ActiveSessions())
	assert.Equal(t, 1, env.workers.Active())

	// the client leaving ends the session and frees what it held
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return env.controller.Engine.ActiveSessions() == 0 && len(env.cameras.Stats()) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestShutdownClosesStreams(t *testing.T) {
	env := setupTestEnvironment(t, nil)

	conn := dialStream(t, env, url.Values{"token": {env.token(t, 1)}, "mode": {"normal"}})
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)

	env.controller.Shutdown()

	ce := expectClose(t, conn)
	assert.Equal(t, websocket.CloseNormalClosure, ce.Code)
	assert.Zero(t, env.controller.Engine.ActiveSessions())
}

func TestStreamRefusedAfterShutdown(t *testing.T) {
	env := setupTestEnvironment(t, nil)

	env.controller.Shutdown()

	conn := dialStream(t, env, url.Values{"token": {env.token(t, 1)}, "mode": {"normal"}})
	ce := expectClose(t, conn)
	assert.Equal(t, websocket.CloseGoingAway, ce.Code)
	assert.Equal(t, "server shutting down", ce.Text)

	assert.Zero(t, env.controller.Engine.ActiveSessions())
	assert.Empty(t, env.cameras.Stats())
}
