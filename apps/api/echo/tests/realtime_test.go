package tests

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/admissions/core/application"
	"github.com/trezcool/admissions/core/notification"
	"github.com/trezcool/admissions/core/user"
	"github.com/trezcool/admissions/tests"
)

type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dial(t *testing.T, srv *httptest.Server, token string, inQuery bool) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := make(http.Header)
	if inQuery {
		url += "?token=" + token
	} else if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame wsFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func waitForSessions(t *testing.T, hub *notification.Hub, userID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Sessions(userID) == n }, 5*time.Second, 10*time.Millisecond)
}

func Test_realtime(t *testing.T) {
	env := setup(t)
	srv := httptest.NewServer(env.app)
	defer srv.Close()

	alice := testutil.CreateUser(t, env.usrRepo, "Alice", "alice@x.com", "", user.RoleStudent)
	bob := testutil.CreateUser(t, env.usrRepo, "Bob", "bob@x.com", "", user.RoleStudent)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin@x.com", "", user.RoleAdmin)
	app := testutil.CreateApplication(t, env.appRepo, alice, application.StatusPending, "id.pdf")

	t.Run("token required", func(t *testing.T) {
		_, resp, err := dial(t, srv, "", false)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		_, resp, err = dial(t, srv, "lol", true)
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	aliceConn, _, err := dial(t, srv, env.getToken(t, alice), false)
	require.NoError(t, err)
	frame := readFrame(t, aliceConn)
	assert.Equal(t, notification.EventJoined, frame.Event)
	assert.JSONEq(t, `{"userId": "`+alice.ID+`"}`, string(frame.Data))

	// a second session of alice, authenticated through the query string
	aliceConn2, _, err := dial(t, srv, env.getToken(t, alice), true)
	require.NoError(t, err)
	assert.Equal(t, notification.EventJoined, readFrame(t, aliceConn2).Event)

	bobConn, _, err := dial(t, srv, env.getToken(t, bob), false)
	require.NoError(t, err)
	assert.Equal(t, notification.EventJoined, readFrame(t, bobConn).Event)
	waitForSessions(t, env.hub, alice.ID, 2)

	t.Run("joining another channel is refused", func(t *testing.T) {
		require.NoError(t, bobConn.WriteJSON(map[string]interface{}{"event": "join", "data": map[string]string{"userId": alice.ID}}))
		frame := readFrame(t, bobConn)
		assert.Equal(t, notification.EventError, frame.Event)
		assert.Equal(t, 1, env.hub.Sessions(bob.ID))
		assert.Equal(t, 2, env.hub.Sessions(alice.ID))
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, bobConn.WriteJSON(map[string]string{"event": "ping"}))
		assert.Equal(t, notification.EventPong, readFrame(t, bobConn).Event)
	})

	t.Run("status updates reach every session of the student only", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/applications/"+app.ID+"/approve", env.getToken(t, admin))
		env.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		for _, conn := range []*websocket.Conn{aliceConn, aliceConn2} {
			frame := readFrame(t, conn)
			require.Equal(t, notification.EventApplicationStatusUpdated, frame.Event)
			var view application.StatusView
			require.NoError(t, json.Unmarshal(frame.Data, &view))
			assert.Equal(t, application.StatusApproved, view.Status)
			assert.Equal(t, notification.EventNotification, readFrame(t, conn).Event)
		}

		// bob only gets the answer to his own ping
		require.NoError(t, bobConn.WriteJSON(map[string]string{"event": "ping"}))
		assert.Equal(t, notification.EventPong, readFrame(t, bobConn).Event)
	})

	t.Run("disconnect leaves the channel", func(t *testing.T) {
		require.NoError(t, aliceConn2.Close())
		waitForSessions(t, env.hub, alice.ID, 1)
	})
}
