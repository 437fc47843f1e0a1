package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"signal_exec/internal/models"

	"github.com/gorilla/websocket"
)

// fakeExchange — websocket-сервер, ведущий себя как stream.bybit.com.
type fakeExchange struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	refuse atomic.Int32 // сколько следующих dial'ов отбить 503
	dials  atomic.Int32
	authOK atomic.Bool

	conns chan *serverConn
}

type serverConn struct {
	ws     *websocket.Conn
	mu     sync.Mutex
	frames chan map[string]any
}

func newFakeExchange(t *testing.T) *fakeExchange {
	f := &fakeExchange{t: t, conns: make(chan *serverConn, 16)}
	f.authOK.Store(true)
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeExchange) URL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeExchange) handle(w http.ResponseWriter, r *http.Request) {
	f.dials.Add(1)
	if f.refuse.Load() > 0 {
		f.refuse.Add(-1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	ws, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	sc := &serverConn{ws: ws, frames: make(chan map[string]any, 64)}
	f.conns <- sc

	defer close(sc.frames)
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var frame map[string]any
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue
		}
		if frame["op"] == models.OpAuth {
			ok := f.authOK.Load()
			ack := map[string]any{"op": "auth", "success": ok, "ret_msg": "", "conn_id": "c1"}
			if !ok {
				ack["ret_msg"] = "Params Error"
			}
			_ = sc.writeJSON(ack)
		}
		sc.frames <- frame
	}
}

func (f *fakeExchange) nextConn() *serverConn {
	f.t.Helper()
	select {
	case sc := <-f.conns:
		return sc
	case <-time.After(3 * time.Second):
		f.t.Fatal("no connection from client")
		return nil
	}
}

func (sc *serverConn) writeJSON(v any) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.ws.WriteJSON(v)
}

func (sc *serverConn) writeRaw(msg string) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.ws.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (sc *serverConn) close() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	_ = sc.ws.Close()
}

func (sc *serverConn) nextFrame(t *testing.T) map[string]any {
	t.Helper()
	select {
	case fr, ok := <-sc.frames:
		if !ok {
			t.Fatal("connection closed before frame")
		}
		return fr
	case <-time.After(3 * time.Second):
		t.Fatal("no frame from client")
		return nil
	}
}

// nextNonPing пропускает heartbeat-кадры.
func (sc *serverConn) nextNonPing(t *testing.T) map[string]any {
	t.Helper()
	for {
		fr := sc.nextFrame(t)
		if fr["op"] != models.OpPing {
			return fr
		}
	}
}

func args(fr map[string]any) []string {
	raw, _ := fr["args"].([]any)
	out := make([]string, 0, len(raw))
	for _, a := range raw {
		if s, ok := a.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

type recordingListener struct {
	NopListener

	mu       sync.Mutex
	opens    int
	auths    []error
	errs     []error
	closes   []error
	messages []models.InFrame
}

func (l *recordingListener) OnClose(_ models.StreamKind, err error) {
	l.mu.Lock()
	l.closes = append(l.closes, err)
	l.mu.Unlock()
}

func (l *recordingListener) closeErrs() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.closes...)
}

func (l *recordingListener) OnOpen(models.StreamKind) {
	l.mu.Lock()
	l.opens++
	l.mu.Unlock()
}

func (l *recordingListener) OnAuth(_ models.StreamKind, err error) {
	l.mu.Lock()
	l.auths = append(l.auths, err)
	l.mu.Unlock()
}

func (l *recordingListener) OnError(_ models.StreamKind, err error) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

func (l *recordingListener) OnMessage(_ models.StreamKind, f models.InFrame) {
	l.mu.Lock()
	l.messages = append(l.messages, f)
	l.mu.Unlock()
}

func (l *recordingListener) snapshot() (opens int, auths, errs []error, messages []models.InFrame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opens, append([]error(nil), l.auths...), append([]error(nil), l.errs...), append([]models.InFrame(nil), l.messages...)
}
