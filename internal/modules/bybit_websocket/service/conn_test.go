package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"signal_exec/internal/models"
	"signal_exec/internal/modules/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runConn(t *testing.T, c *Conn) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	return func() {
		c.Disconnect()
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatal("conn did not stop")
		}
	}
}

// instant — backoff без реального ожидания; задержки пишутся в delays.
type instant struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (i *instant) sleep(ctx context.Context, d time.Duration) bool {
	i.mu.Lock()
	i.delays = append(i.delays, d)
	i.mu.Unlock()
	return ctx.Err() == nil
}

func (i *instant) get() []time.Duration {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]time.Duration(nil), i.delays...)
}

func publicConn(url string, l Listener, topics ...string) *Conn {
	return NewConn(Options{
		Kind:         models.StreamPublicLinear,
		URL:          url,
		Topics:       topics,
		BackoffFloor: time.Second,
		BackoffCap:   30 * time.Second,
		Heartbeat:    time.Hour,
	}, l)
}

func TestPublicSubscribesOnOpen(t *testing.T) {
	ex := newFakeExchange(t)
	c := publicConn(ex.URL(), nil, "tickers.BTCUSDT", "orderbook.50.BTCUSDT")
	stop := runConn(t, c)
	defer stop()

	sc := ex.nextConn()
	fr := sc.nextFrame(t)
	assert.Equal(t, models.OpSubscribe, fr["op"])
	assert.Equal(t, []string{"orderbook.50.BTCUSDT", "tickers.BTCUSDT"}, args(fr))

	assert.Eventually(t, func() bool { return c.State() == StateSubscribed }, time.Second, 5*time.Millisecond)
}

func TestResubscribeAfterReconnect(t *testing.T) {
	ex := newFakeExchange(t)
	c := publicConn(ex.URL(), nil)
	waits := &instant{}
	c.sleep = waits.sleep
	stop := runConn(t, c)
	defer stop()

	first := ex.nextConn()
	require.Eventually(t, func() bool { return c.State() == StateSubscribed }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.AddTopics("A", "B"))
	fr := first.nextFrame(t)
	assert.Equal(t, models.OpSubscribe, fr["op"])
	assert.Equal(t, []string{"A", "B"}, args(fr))

	first.close()

	second := ex.nextConn()
	fr = second.nextNonPing(t)
	assert.Equal(t, models.OpSubscribe, fr["op"])
	assert.Equal(t, []string{"A", "B"}, args(fr))
	assert.Equal(t, []time.Duration{time.Second}, waits.get())
}

func TestPrivateAuthenticatesBeforeSubscribe(t *testing.T) {
	ex := newFakeExchange(t)
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l := &recordingListener{}
	c := NewConn(Options{
		Kind:        models.StreamPrivate,
		URL:         ex.URL(),
		Credentials: config.Credentials{APIKey: "key-1", APISecret: "secret-1"},
		Topics:      []string{"order", "position"},
		Heartbeat:   time.Hour,
		Now:         func() time.Time { return fixed },
	}, l)
	c.sleep = (&instant{}).sleep
	stop := runConn(t, c)
	defer stop()

	for round := 0; round < 2; round++ {
		sc := ex.nextConn()

		auth := sc.nextFrame(t)
		require.Equal(t, models.OpAuth, auth["op"])
		raw := auth["args"].([]any)
		require.Len(t, raw, 3)

		expires := fixed.Add(60 * time.Second).UnixMilli()
		assert.Equal(t, "key-1", raw[0])
		assert.EqualValues(t, expires, raw[1])
		assert.Equal(t, AuthSignature("secret-1", expires), raw[2])

		sub := sc.nextNonPing(t)
		assert.Equal(t, models.OpSubscribe, sub["op"])
		assert.Equal(t, []string{"order", "position"}, args(sub))

		sc.close()
	}

	_, auths, _, _ := l.snapshot()
	require.GreaterOrEqual(t, len(auths), 2)
	assert.NoError(t, auths[0])
}

func TestAuthRejectedDoesNotSubscribe(t *testing.T) {
	ex := newFakeExchange(t)
	ex.authOK.Store(false)
	l := &recordingListener{}
	c := NewConn(Options{
		Kind:        models.StreamTrade,
		URL:         ex.URL(),
		Credentials: config.Credentials{APIKey: "k", APISecret: "s"},
		Topics:      []string{"order"},
		Heartbeat:   time.Hour,
	}, l)
	stop := runConn(t, c)
	defer stop()

	sc := ex.nextConn()
	assert.Equal(t, models.OpAuth, sc.nextFrame(t)["op"])

	require.Eventually(t, func() bool {
		_, auths, _, _ := l.snapshot()
		return len(auths) == 1
	}, time.Second, 5*time.Millisecond)

	_, auths, errs, _ := l.snapshot()
	assert.ErrorIs(t, auths[0], models.ErrAuthRejected)
	require.NotEmpty(t, errs)
	assert.ErrorIs(t, errs[0], models.ErrAuthRejected)

	select {
	case fr := <-sc.frames:
		t.Fatalf("unexpected frame after rejected auth: %v", fr)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, StateAuthenticating, c.State())
}

func TestMalformedFrameIsNotFatal(t *testing.T) {
	ex := newFakeExchange(t)
	l := &recordingListener{}
	c := publicConn(ex.URL(), l, "publicTrade.BTCUSDT")
	stop := runConn(t, c)
	defer stop()

	sc := ex.nextConn()
	sc.nextFrame(t)

	require.NoError(t, sc.writeRaw("{not json"))
	require.NoError(t, sc.writeRaw(`{"success":true,"ret_msg":"","op":"subscribe","conn_id":"c1"}`))
	require.NoError(t, sc.writeRaw(`{"topic":"publicTrade.BTCUSDT","type":"snapshot","ts":1700000000000,"data":[]}`))

	require.Eventually(t, func() bool {
		_, _, _, msgs := l.snapshot()
		return len(msgs) == 1
	}, time.Second, 5*time.Millisecond)

	_, _, errs, msgs := l.snapshot()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], models.ErrMalformedFrame)
	assert.Equal(t, "publicTrade.BTCUSDT", msgs[0].Topic)
	assert.Equal(t, int64(1700000000000), msgs[0].TS)
	assert.NotEmpty(t, msgs[0].Raw)

	assert.EqualValues(t, 1, ex.dials.Load())
	assert.Equal(t, StateSubscribed, c.State())
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	ex := newFakeExchange(t)
	c := publicConn(ex.URL(), nil, "A")
	waits := &instant{}
	c.sleep = waits.sleep

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	sc := ex.nextConn()
	sc.nextFrame(t)

	c.Disconnect()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Disconnect")
	}

	assert.EqualValues(t, 1, ex.dials.Load())
	assert.Empty(t, waits.get())
	assert.Equal(t, StateDisconnected, c.State())
}

func TestReconnectBackoffScenario(t *testing.T) {
	ex := newFakeExchange(t)
	ex.refuse.Store(3)

	c := publicConn(ex.URL(), nil, "A")
	var (
		mu     sync.Mutex
		delays []time.Duration
	)
	c.sleep = func(_ context.Context, d time.Duration) bool {
		mu.Lock()
		defer mu.Unlock()
		delays = append(delays, d)
		return len(delays) < 4
	}

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	// четвёртый dial успешен, затем сервер рвёт соединение
	sc := ex.nextConn()
	sc.nextFrame(t)
	sc.close()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, time.Second}, delays)
	assert.EqualValues(t, 4, ex.dials.Load())
}

func TestHeartbeatSendsPing(t *testing.T) {
	ex := newFakeExchange(t)
	c := NewConn(Options{
		Kind:      models.StreamPublicSpot,
		URL:       ex.URL(),
		Topics:    []string{"tickers.ETHUSDT"},
		Heartbeat: 20 * time.Millisecond,
	}, nil)
	stop := runConn(t, c)
	defer stop()

	sc := ex.nextConn()
	assert.Equal(t, models.OpSubscribe, sc.nextFrame(t)["op"])
	assert.Equal(t, models.OpPing, sc.nextFrame(t)["op"])
	assert.Equal(t, models.OpPing, sc.nextFrame(t)["op"])
}

func TestHeartbeatStopsWithSession(t *testing.T) {
	ex := newFakeExchange(t)
	c := NewConn(Options{
		Kind:      models.StreamPublicSpot,
		URL:       ex.URL(),
		Topics:    []string{"tickers.ETHUSDT"},
		Heartbeat: 10 * time.Millisecond,
	}, nil)
	c.sleep = (&instant{}).sleep
	stop := runConn(t, c)

	first := ex.nextConn()
	require.Equal(t, models.OpSubscribe, first.nextFrame(t)["op"])
	require.Equal(t, models.OpPing, first.nextFrame(t)["op"])
	first.close()

	second := ex.nextConn()
	assert.Equal(t, models.OpSubscribe, second.nextFrame(t)["op"])
	assert.Equal(t, models.OpPing, second.nextFrame(t)["op"])

	// тикер первой сессии остановлен, живёт только тикер второй
	assert.Eventually(t, func() bool { return c.heartbeats.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return c.heartbeats.Load() > 1 }, 100*time.Millisecond, 5*time.Millisecond)

	stop()
	assert.Eventually(t, func() bool { return c.heartbeats.Load() == 0 }, time.Second, 5*time.Millisecond)
}

// openHook вызывает fn из OnOpen на горутине соединения.
type openHook struct {
	NopListener
	once sync.Once
	fn   func()
}

func (h *openHook) OnOpen(models.StreamKind) { h.once.Do(h.fn) }

func TestAddTopicsDuringInitialSubscribe(t *testing.T) {
	ex := newFakeExchange(t)
	hook := &openHook{}
	c := publicConn(ex.URL(), hook, "A")

	added := make(chan error, 1)
	hook.fn = func() {
		c.mu.Lock()
		sess := c.sess
		c.mu.Unlock()

		// держим запись сессии, пока AddTopics гоняется с полным subscribe
		sess.writeMu.Lock()
		go func() {
			defer sess.writeMu.Unlock()
			time.Sleep(20 * time.Millisecond)
			added <- c.AddTopics("B")
		}()
	}

	stop := runConn(t, c)
	defer stop()

	sc := ex.nextConn()
	require.NoError(t, <-added)

	fr := sc.nextNonPing(t)
	assert.Equal(t, models.OpSubscribe, fr["op"])
	assert.Equal(t, []string{"A", "B"}, args(fr))

	require.Eventually(t, func() bool { return c.State() == StateSubscribed }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"A", "B"}, c.Topics())

	// после полного набора изменения снова уходят инкрементально
	require.NoError(t, c.AddTopics("C"))
	fr = sc.nextNonPing(t)
	assert.Equal(t, models.OpSubscribe, fr["op"])
	assert.Equal(t, []string{"C"}, args(fr))
}

func TestTopicsChangedWhileDisconnected(t *testing.T) {
	c := publicConn("ws://127.0.0.1:1", nil, "A", "B")

	require.NoError(t, c.AddTopics("C", "A"))
	require.NoError(t, c.RemoveTopics("B", "missing"))

	assert.Equal(t, []string{"A", "C"}, c.Topics())
	assert.Equal(t, StateDisconnected, c.State())
}

func TestRemoveTopicsSendsUnsubscribe(t *testing.T) {
	ex := newFakeExchange(t)
	c := publicConn(ex.URL(), nil, "A", "B")
	stop := runConn(t, c)
	defer stop()

	sc := ex.nextConn()
	sc.nextFrame(t)
	require.Eventually(t, func() bool { return c.State() == StateSubscribed }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.RemoveTopics("B"))
	fr := sc.nextNonPing(t)
	assert.Equal(t, models.OpUnsubscribe, fr["op"])
	assert.Equal(t, []string{"B"}, args(fr))
}

func TestAuthSignature(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("GET/realtime1700000060000"))
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, AuthSignature("secret", 1700000060000))
	assert.NotEqual(t, want, AuthSignature("other", 1700000060000))
}

func TestPrivateWithoutCredentials(t *testing.T) {
	ex := newFakeExchange(t)
	l := &recordingListener{}
	c := NewConn(Options{Kind: models.StreamPrivate, URL: ex.URL()}, l)
	c.sleep = func(context.Context, time.Duration) bool { return false }

	require.NoError(t, c.Run(context.Background()))
	assert.EqualValues(t, 1, ex.dials.Load())

	closes := l.closeErrs()
	require.Len(t, closes, 1)
	assert.ErrorIs(t, closes[0], models.ErrAuthRejected)
}
