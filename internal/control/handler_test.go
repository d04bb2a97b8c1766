package control_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsecast/internal/control"
	"pulsecast/internal/domain"
	"pulsecast/internal/remote/fake"
	"pulsecast/internal/scheduler"
)

type fakeController struct {
	mu      sync.Mutex
	started []domain.StartRequest
	stopped []string
	known   map[string]bool
	stats   domain.Stats
	err     error
}

func (f *fakeController) Start(req domain.StartRequest, owner string, emit domain.Emitter) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.started = append(f.started, req)
	return "tsk_1", nil
}

func (f *fakeController) Stop(id, reason string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	return f.known[id]
}

func (f *fakeController) StopOwnedBy(owner, reason string) int { return 0 }

func (f *fakeController) Stats() domain.Stats { return f.stats }

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Emit(e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestHandle(t *testing.T) {
	tests := map[string]struct {
		ctrl       *fakeController
		msg        string
		expEvents  []domain.Event
		expStarted int
		expStopped []string
	}{
		"Malformed JSON should be dropped": {
			ctrl: &fakeController{},
			msg:  `{"type": "start", `,
		},
		"Unknown type should be dropped": {
			ctrl: &fakeController{},
			msg:  `{"type": "dance"}`,
		},
		"Start should reach the controller": {
			ctrl:       &fakeController{},
			msg:        `{"type":"start","cookieContent":"c","messageContent":"m","threadID":"1","delay":5,"hatersName":"A","lastHereName":"Z"}`,
			expStarted: 1,
		},
		"Rejected start should log an error": {
			ctrl:      &fakeController{err: domain.ErrInputInvalid},
			msg:       `{"type":"start","threadID":"abc"}`,
			expEvents: []domain.Event{domain.LogEvent("Error: " + domain.ErrInputInvalid.Error())},
		},
		"Stop of a running task should be silent": {
			ctrl:       &fakeController{known: map[string]bool{"tsk_9": true}},
			msg:        `{"type":"stop_by_id","taskId":"tsk_9"}`,
			expStopped: []string{"tsk_9"},
		},
		"Stop of an unknown task should log": {
			ctrl:       &fakeController{},
			msg:        `{"type":"stop_by_id","taskId":"tsk_9"}`,
			expEvents:  []domain.Event{domain.LogEvent("[Task tsk_9] unknown task: not running")},
			expStopped: []string{"tsk_9"},
		},
		"Stop without id should be dropped": {
			ctrl: &fakeController{},
			msg:  `{"type":"stop_by_id"}`,
		},
		"Monitor should report stats": {
			ctrl: &fakeController{stats: domain.Stats{Uptime: 61 * time.Second, ActiveTasks: 2, Delivered: 9}},
			msg:  `{"type":"monitor"}`,
			expEvents: []domain.Event{{Type: domain.EventMonitorData, Monitor: &domain.Monitor{
				Uptime: 61, ActiveTasks: 2, TotalSent: 9,
			}}},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			h := control.NewHandler(test.ctrl, control.Config{})
			rec := &recorder{}

			h.Handle("conn_1", rec, []byte(test.msg))

			assert.Equal(t, test.expEvents, rec.events)
			assert.Len(t, test.ctrl.started, test.expStarted)
			assert.Equal(t, test.expStopped, test.ctrl.stopped)
		})
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return ws
}

func readUntil(t *testing.T, ws *websocket.Conn, typ domain.EventType) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var m map[string]any
		require.NoError(t, ws.ReadJSON(&m))
		if m["type"] == string(typ) {
			return m
		}
	}
}

func TestWebsocketSession(t *testing.T) {
	svc := scheduler.NewService(&fake.Client{}, scheduler.Config{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	srv := httptest.NewServer(control.NewHandler(svc, control.Config{PingInterval: 200 * time.Millisecond}))
	defer srv.Close()
	ws := dial(t, srv)

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "start", "threadID": "abc"}))
	m := readUntil(t, ws, domain.EventLog)
	assert.Contains(t, m["message"], "Error:")
	assert.Equal(t, 0, svc.Stats().ActiveTasks)

	require.NoError(t, ws.WriteJSON(map[string]any{
		"type":           "start",
		"cookieContent":  "a\nb",
		"messageContent": "hi\nbye",
		"threadID":       "42",
		"delay":          30,
		"hatersName":     "A",
		"lastHereName":   "Z",
	}))
	started := readUntil(t, ws, domain.EventTaskStarted)
	id, _ := started["taskId"].(string)
	require.NotEmpty(t, id)

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "monitor"}))
	mon := readUntil(t, ws, domain.EventMonitorData)
	assert.EqualValues(t, 1, mon["activeTasks"])
	assert.EqualValues(t, 0, mon["totalMessagesSent"])

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "stop_by_id", "taskId": id}))
	stopped := readUntil(t, ws, domain.EventStopped)
	assert.Equal(t, id, stopped["taskId"])
	assert.Equal(t, scheduler.ReasonUser, stopped["reason"])
	assert.Equal(t, 0, svc.Stats().ActiveTasks)
}

func TestWebsocketDisconnectStopsOwnedTasks(t *testing.T) {
	svc := scheduler.NewService(&fake.Client{}, scheduler.Config{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	srv := httptest.NewServer(control.NewHandler(svc, control.Config{}))
	defer srv.Close()
	ws := dial(t, srv)

	require.NoError(t, ws.WriteJSON(map[string]any{
		"type": "start", "cookieContent": "a", "messageContent": "m",
		"threadID": "7", "hatersName": "A", "lastHereName": "Z",
	}))
	readUntil(t, ws, domain.EventTaskStarted)
	assert.Equal(t, 1, svc.Stats().ActiveTasks)

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return svc.Stats().ActiveTasks == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestKeepaliveDropsSilentPeer(t *testing.T) {
	client := &fake.Client{}
	svc := scheduler.NewService(client, scheduler.Config{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	srv := httptest.NewServer(control.NewHandler(svc, control.Config{PingInterval: 20 * time.Millisecond}))
	defer srv.Close()
	ws := dial(t, srv)
	defer ws.Close()

	// Never read, so pings go unanswered.
	require.NoError(t, ws.WriteJSON(map[string]any{
		"type": "start", "cookieContent": "a", "messageContent": "m",
		"threadID": "7", "hatersName": "A", "lastHereName": "Z",
	}))
	require.Eventually(t, func() bool {
		return len(client.Logins()) == 1 && svc.Stats().ActiveTasks == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
}
