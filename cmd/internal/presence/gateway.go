package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"pipit/cmd/internal/auth/gate"
	v1 "pipit/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const (
	wsSubprotocolV1 = "pipit.realtime.v1"

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// Gateway is the WebSocket entrypoint for Pipit realtime.
//
// It authorizes the handshake (verified accounts only), re-verifies the
// handshake credential on every inbound event, maintains the live
// presence registry, and routes private messages persistence-first.
type Gateway struct {
	log      *slog.Logger
	registry *Registry
	store    MessageStore
	gate     *gate.Gate

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin it requires OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewGateway constructs a gateway with secure defaults.
// When registry/store are nil, it falls back to in-memory implementations for dev.
// The gate is mandatory: an unauthenticated realtime surface does not exist.
func NewGateway(log *slog.Logger, registry *Registry, store MessageStore, g *gate.Gate) (*Gateway, error) {
	if g == nil {
		return nil, errors.New("presence: nil gate")
	}
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if store == nil {
		store = NewInMemoryStore()
	}

	gw := &Gateway{log: log, registry: registry, store: store, gate: g}

	// NOTE: InsecureSkipVerify is a dev-only knob (TLS verification). It is not an origin policy.
	gw.devInsecure = envBoolWS("PIPIT_WS_DEV_INSECURE", false)

	gw.originRequired = envBoolWS("PIPIT_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	gw.allowedOrigins = envCSVWS("PIPIT_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)

	// websocket.Accept enforces its own origin policy: same-host is ok,
	// cross-origin requires OriginPatterns. Derive the patterns from the
	// allowlist so the two layers agree.
	gw.originPatterns = deriveOriginPatternsFromAllowedOrigins(gw.allowedOrigins)

	gw.writeTimeout = envDurationWS("PIPIT_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	gw.readIdleTimeout = envDurationWS("PIPIT_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)

	gw.sendQueueSize = envIntWS("PIPIT_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if gw.sendQueueSize < wsMinSendQueueSize {
		gw.sendQueueSize = wsMinSendQueueSize
	}

	gw.heartbeatEvery = envDurationWS("PIPIT_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	gw.heartbeatTimeout = envDurationWS("PIPIT_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	gw.rateEvents = envIntWS("PIPIT_WS_RATE_EVENTS", rateLimitEvents)
	gw.rateWindow = envDurationWS("PIPIT_WS_RATE_WINDOW", rateLimitWindow)

	return gw, nil
}

// Registry exposes the live presence registry (read-oriented use only).
func (g *Gateway) Registry() *Registry { return g.registry }

// ServeHTTP adapter so the gateway can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a WebSocket session and runs the realtime loop.
//
// Handshake authorization strictly precedes registry insertion, which
// strictly precedes acceptance of any inbound event. Rejection at handshake
// leaves no partial connection state behind.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		metricHandshakeRejects.WithLabelValues("origin").Inc()
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	now := time.Now().UTC()

	rawBearer, err := gate.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		g.log.Info("ws.reject.credential", "err", err, "remote", r.RemoteAddr)
		metricHandshakeRejects.WithLabelValues("unauthorized").Inc()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	claims, err := g.gate.VerifyAccess(rawBearer, now)
	if err != nil {
		g.log.Info("ws.reject.credential", "err", err, "remote", r.RemoteAddr)
		metricHandshakeRejects.WithLabelValues("unauthorized").Inc()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// Stricter than plain HTTP access: realtime requires a verified account.
	if err := gate.RequireVerified(claims); err != nil {
		g.log.Info("ws.reject.unverified", "user_id", claims.UserID, "remote", r.RemoteAddr)
		metricHandshakeRejects.WithLabelValues("forbidden").Inc()
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{wsSubprotocolV1},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	connID, err := NewConnID(now)
	if err != nil {
		g.log.Error("ws.conn_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "id allocation failed")
		return
	}

	client := NewClient(claims.UserID, connID, g.sendQueueSize)

	// Last connection wins: a newer connection for the same user takes
	// over routing. The displaced connection stays open but unroutable
	// until it disconnects on its own.
	if prev := g.registry.Bind(client); prev != nil {
		g.log.Info("presence.replace", "user_id", claims.UserID, "old_conn", prev.ConnID, "new_conn", connID)
	}
	metricConnections.Set(float64(g.registry.Len()))
	g.log.Info("presence.bind", "user_id", claims.UserID, "conn_id", connID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close client.Send.
	// Registry removal is compare-and-delete so a stale shutdown never
	// evicts the connection that replaced this one.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			if g.registry.Unbind(claims.UserID, connID) {
				g.log.Info("presence.unbind", "user_id", claims.UserID, "conn_id", connID, "reason", reason)
			}
			metricConnections.Set(float64(g.registry.Len()))

			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "conn_id", connID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "conn_id", connID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(ctx, client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "conn_id", connID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.trySendError(ctx, client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		// Every inbound event re-verifies the handshake credential: the
		// access token may have expired mid-session. A failure here is
		// terminal for the connection, not just for the event.
		if _, err := g.gate.VerifyAccess(rawBearer, now); err != nil {
			g.log.Info("ws.reauth.fail", "user_id", claims.UserID, "conn_id", connID, "err", err)
			metricForcedDisconnects.Inc()
			g.trySendError(ctx, client, "credential_expired", "access token no longer valid")
			shutdown(websocket.StatusPolicyViolation, "credential expired")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(ctx, client, "bad_envelope", err.Error())
			continue readLoop
		}

		switch env.Type {
		case v1.TypePrivateMessage:
			if err := g.onPrivateMessage(ctx, client, env, now); err != nil {
				g.trySendError(ctx, client, "send_failed", err.Error())
				continue readLoop
			}

		default:
			g.trySendError(ctx, client, "unsupported", fmt.Sprintf("unsupported type: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- handlers ----

// onPrivateMessage persists the message, then delivers it to the receiver's
// live connection if one exists. Persistence strictly precedes delivery: a
// failed insert aborts the event and nothing is routed.
func (g *Gateway) onPrivateMessage(ctx context.Context, sender *Client, env v1.Envelope, now time.Time) error {
	var p v1.PrivateMessagePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	receiverID := strings.TrimSpace(p.ReceiverID)
	if receiverID == "" {
		return errors.New("missing receiver_id")
	}

	content := strings.TrimSpace(p.Content)
	if content == "" {
		return errors.New("empty content")
	}
	if len([]rune(content)) > maxContentChars {
		return fmt.Errorf("content too long: max=%d chars", maxContentChars)
	}

	msgID, err := NewMessageID(now)
	if err != nil {
		return fmt.Errorf("id allocation: %w", err)
	}

	msg := Message{
		ID:         msgID,
		SenderID:   sender.UserID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  now,
	}
	if err := g.store.Insert(ctx, msg); err != nil {
		return fmt.Errorf("store insert: %w", err)
	}
	metricMessagesPersisted.Inc()

	receiver, online := g.registry.Lookup(receiverID)
	if !online {
		// Store-and-forget: the message is durable, nothing fires live.
		metricMessagesOffline.Inc()
		return nil
	}

	recPayload, _ := json.Marshal(v1.PrivateMessageRecPayload{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt,
	})
	rec := newEnvelope(v1.TypePrivateMessageRec, recPayload, now)

	if !g.enqueue(ctx, receiver, rec) {
		// Receiver backpressure never un-persists the message.
		g.log.Info("ws.deliver.drop", "message_id", msg.ID, "receiver_id", receiverID)
		metricMessagesOffline.Inc()
		return nil
	}

	metricMessagesDelivered.Inc()
	return nil
}

// ---- send helpers ----

func (g *Gateway) trySendError(ctx context.Context, client *Client, code, msg string) {
	p, _ := json.Marshal(v1.ErrorPayload{Code: code, Message: msg})
	env := newEnvelope(v1.TypeError, p, time.Now().UTC())
	_ = g.enqueue(ctx, client, env)
}

func (g *Gateway) enqueue(ctx context.Context, client *Client, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	default:
		return false
	}
}

// ---- envelope IO ----

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      NewRandomHex(10),
		TS:      ts,
		Payload: payload,
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	// JSON decode errors are typically returned by json.Unmarshal, not conn.Read.
	// This fallback exists for robustness when error strings are propagated.
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using filepath.Match patterns.
	// Keep this strict: only hosts extracted from the allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	// Stable in-file sort (avoid importing sort just for this).
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
