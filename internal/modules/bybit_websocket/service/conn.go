package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"signal_exec/internal/models"
	"signal_exec/internal/modules/config"
	"signal_exec/pkg/logger"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateAuthenticating
	StateAuthenticated
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

const writeTimeout = 10 * time.Second

type Options struct {
	Kind        models.StreamKind
	URL         string
	Credentials config.Credentials
	Topics      []string

	BackoffFloor time.Duration
	BackoffCap   time.Duration
	Heartbeat    time.Duration
	AuthTTL      time.Duration

	Dialer *websocket.Dialer
	Now    func() time.Time
}

// Conn — одно соединение (network, kind) с бесконечным переподключением.
// Набор топиков принадлежит соединению и переживает реконнекты.
type Conn struct {
	kind     models.StreamKind
	url      string
	creds    config.Credentials
	dialer   *websocket.Dialer
	listener Listener
	log      *zap.Logger

	heartbeat time.Duration
	authTTL   time.Duration
	backoff   *Backoff
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) bool

	state atomic.Int32
	// живые heartbeat-горутины; вне переходов между сессиями не больше одной
	heartbeats atomic.Int32

	mu     sync.Mutex
	topics map[string]struct{}
	sess   *session

	stopOnce sync.Once
	stop     chan struct{}
}

// session — состояние одного физического соединения.
type session struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	hbOnce  sync.Once
	done    chan struct{}

	// под Conn.mu: полный набор уже снят для этой сессии,
	// дальнейшие изменения идут инкрементально
	subscribed bool
}

func NewConn(opts Options, listener Listener) *Conn {
	if listener == nil {
		listener = NopListener{}
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 20 * time.Second
	}
	if opts.AuthTTL <= 0 {
		opts.AuthTTL = 60 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Conn{
		kind:      opts.Kind,
		url:       opts.URL,
		creds:     opts.Credentials,
		dialer:    opts.Dialer,
		listener:  listener,
		log:       logger.L().Named("ws").With(zap.String("kind", string(opts.Kind))),
		heartbeat: opts.Heartbeat,
		authTTL:   opts.AuthTTL,
		backoff:   NewBackoff(opts.BackoffFloor, opts.BackoffCap),
		now:       opts.Now,
		topics:    make(map[string]struct{}, len(opts.Topics)),
		stop:      make(chan struct{}),
	}
	c.sleep = c.wait
	for _, t := range opts.Topics {
		c.topics[t] = struct{}{}
	}
	return c
}

func (c *Conn) Kind() models.StreamKind { return c.kind }

func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) setState(s State) { c.state.Store(int32(s)) }

// Topics — текущий желаемый набор, отсортирован.
func (c *Conn) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topicsLocked()
}

func (c *Conn) topicsLocked() []string {
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Run держит соединение до Disconnect или отмены ctx.
func (c *Conn) Run(ctx context.Context) error {
	defer c.setState(StateDisconnected)

	for {
		if c.stopped() || ctx.Err() != nil {
			return nil
		}

		c.setState(StateConnecting)
		ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.log.Warn("dial failed", zap.Error(err))
			c.listener.OnError(c.kind, fmt.Errorf("dial %s: %w", c.url, err))
		} else {
			c.backoff.Reset()
			err = c.serve(ctx, ws)
			c.listener.OnClose(c.kind, err)
		}
		c.setState(StateDisconnected)

		if c.stopped() || ctx.Err() != nil {
			return nil
		}

		d := c.backoff.Next()
		c.log.Info("reconnect scheduled", zap.Duration("backoff", d))
		if !c.sleep(ctx, d) {
			return nil
		}
	}
}

// Disconnect — явное отключение: реконнекта не будет.
func (c *Conn) Disconnect() {
	c.stopOnce.Do(func() { close(c.stop) })

	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess != nil {
		_ = sess.ws.Close()
	}
}

func (c *Conn) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *Conn) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-c.stop:
		return false
	case <-t.C:
		return true
	}
}

func (c *Conn) serve(ctx context.Context, ws *websocket.Conn) error {
	sess := &session{ws: ws, done: make(chan struct{})}

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	defer func() {
		close(sess.done)
		_ = ws.Close()
		c.mu.Lock()
		c.sess = nil
		c.mu.Unlock()
	}()

	// Disconnect мог прийти между dial и регистрацией сессии
	if c.stopped() {
		return nil
	}

	// ReadMessage не знает про ctx — закрываем сокет снаружи
	go func() {
		select {
		case <-ctx.Done():
			_ = ws.Close()
		case <-sess.done:
		}
	}()

	c.setState(StateOpen)
	c.log.Info("connected", zap.String("url", c.url))
	c.listener.OnOpen(c.kind)

	if c.kind.Private() {
		if err := c.authenticate(sess); err != nil {
			return err
		}
	} else if err := c.subscribeAll(sess); err != nil {
		return err
	}

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if c.stopped() {
				return nil
			}
			return err
		}
		if err := c.handle(sess, msg); err != nil {
			return err
		}
	}
}

func (c *Conn) handle(sess *session, msg []byte) error {
	var frame models.InFrame
	if err := sonic.Unmarshal(msg, &frame); err != nil {
		c.listener.OnError(c.kind, fmt.Errorf("%w: %v", models.ErrMalformedFrame, err))
		return nil
	}
	frame.Raw = msg

	switch {
	case frame.Op == models.OpAuth && frame.Success != nil:
		if !frame.OK() {
			err := fmt.Errorf("%w: %s", models.ErrAuthRejected, frame.RetMsg)
			c.log.Error("auth rejected", zap.String("ret_msg", frame.RetMsg))
			c.listener.OnAuth(c.kind, err)
			c.listener.OnError(c.kind, err)
			return nil
		}
		c.setState(StateAuthenticated)
		c.listener.OnAuth(c.kind, nil)
		return c.subscribeAll(sess)

	case frame.Op == models.OpPong, frame.Op == models.OpPing && frame.IsAck():
		return nil

	case (frame.Op == models.OpSubscribe || frame.Op == models.OpUnsubscribe) && frame.IsAck():
		if !frame.OK() {
			c.listener.OnError(c.kind, fmt.Errorf("%s rejected: %s", frame.Op, frame.RetMsg))
		}
		return nil
	}

	c.listener.OnMessage(c.kind, frame)
	return nil
}

// authenticate отправляет auth-кадр; успех придёт ack'ом в read-loop.
func (c *Conn) authenticate(sess *session) error {
	if c.creds.Empty() {
		return fmt.Errorf("%w: no credentials for %s", models.ErrAuthRejected, c.kind)
	}
	c.setState(StateAuthenticating)

	expires := c.now().Add(c.authTTL).UnixMilli()
	frame := models.OutFrame{
		Op:   models.OpAuth,
		Args: []any{c.creds.APIKey, expires, AuthSignature(c.creds.APISecret, expires)},
	}
	return c.write(sess, frame)
}

// AuthSignature = hex(HMAC-SHA256(secret, "GET/realtime"+expires)).
func AuthSignature(secret string, expires int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("GET/realtime" + strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// subscribeAll шлёт весь набор топиков одним кадром и запускает heartbeat.
// writeMu держится от снимка до записи: инкрементальные кадры после снимка
// уйдут строго за полным subscribe.
func (c *Conn) subscribeAll(sess *session) error {
	sess.writeMu.Lock()
	c.mu.Lock()
	topics := c.topicsLocked()
	sess.subscribed = true
	c.mu.Unlock()

	var err error
	if len(topics) > 0 {
		err = c.writeLocked(sess, subscribeFrame(models.OpSubscribe, topics))
	}
	sess.writeMu.Unlock()
	if err != nil {
		return err
	}

	c.setState(StateSubscribed)
	c.log.Info("subscribed", zap.Strings("topics", topics))

	sess.hbOnce.Do(func() { go c.runHeartbeat(sess) })
	return nil
}

func (c *Conn) runHeartbeat(sess *session) {
	c.heartbeats.Add(1)
	defer c.heartbeats.Add(-1)

	t := time.NewTicker(c.heartbeat)
	defer t.Stop()
	for {
		select {
		case <-sess.done:
			return
		case <-t.C:
			if err := c.write(sess, models.OutFrame{Op: models.OpPing}); err != nil {
				c.log.Warn("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// AddTopics добавляет топики. На живом соединении сразу уходит
// инкрементальный subscribe, иначе применится при следующем коннекте.
func (c *Conn) AddTopics(topics ...string) error {
	c.mu.Lock()
	added := make([]string, 0, len(topics))
	for _, t := range topics {
		if _, ok := c.topics[t]; ok || t == "" {
			continue
		}
		c.topics[t] = struct{}{}
		added = append(added, t)
	}
	sess := c.liveLocked()
	c.mu.Unlock()

	return c.sendIncremental(sess, models.OpSubscribe, added)
}

func (c *Conn) RemoveTopics(topics ...string) error {
	c.mu.Lock()
	removed := make([]string, 0, len(topics))
	for _, t := range topics {
		if _, ok := c.topics[t]; !ok {
			continue
		}
		delete(c.topics, t)
		removed = append(removed, t)
	}
	sess := c.liveLocked()
	c.mu.Unlock()

	return c.sendIncremental(sess, models.OpUnsubscribe, removed)
}

// liveLocked — текущая сессия, если полный набор ей уже отправлен.
func (c *Conn) liveLocked() *session {
	if c.sess == nil || !c.sess.subscribed {
		return nil
	}
	return c.sess
}

func (c *Conn) sendIncremental(sess *session, op string, topics []string) error {
	if len(topics) == 0 || sess == nil {
		return nil
	}
	sort.Strings(topics)
	return c.write(sess, subscribeFrame(op, topics))
}

func (c *Conn) write(sess *session, frame models.OutFrame) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return c.writeLocked(sess, frame)
}

func (c *Conn) writeLocked(sess *session, frame models.OutFrame) error {
	payload, err := sonic.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", frame.Op, err)
	}

	_ = sess.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := sess.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write %s frame: %w", frame.Op, err)
	}
	return nil
}

func subscribeFrame(op string, topics []string) models.OutFrame {
	args := make([]any, len(topics))
	for i, t := range topics {
		args[i] = t
	}
	return models.OutFrame{Op: op, Args: args}
}
