package presence

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"pipit/cmd/internal/auth/gate"
	"pipit/cmd/security/token"
	v1 "pipit/contracts/realtime/v1"

	"github.com/coder/websocket"
)

func newTestTokenService(t *testing.T) *token.Service {
	t.Helper()

	cfg := token.DefaultConfig()
	cfg.AccessSecret = []byte("access-secret-0123456789abcdefghij")
	cfg.RefreshSecret = []byte("refresh-secret-0123456789abcdefghi")
	cfg.EmailVerifySecret = []byte("verify-secret-0123456789abcdefghij")
	cfg.ForgotPasswordSecret = []byte("forgot-secret-0123456789abcdefghij")

	svc, err := token.NewService(cfg)
	if err != nil {
		t.Fatalf("token.NewService: %v", err)
	}
	return svc
}

type gatewayEnv struct {
	gw       *Gateway
	registry *Registry
	store    *InMemoryStore
	tokens   *token.Service
	srv      *httptest.Server
}

func newGatewayEnv(t *testing.T) *gatewayEnv {
	t.Helper()
	t.Setenv("PIPIT_WS_ORIGIN_REQUIRED", "false")

	tokens := newTestTokenService(t)
	registry := NewRegistry()
	store := NewInMemoryStore()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := NewGateway(log, registry, store, gate.New(tokens))
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &gatewayEnv{gw: gw, registry: registry, store: store, tokens: tokens, srv: srv}
}

func (e *gatewayEnv) accessToken(t *testing.T, userID string, verify token.VerifyStatus) string {
	t.Helper()
	signed, _, err := e.tokens.Issue(token.KindAccess, userID, verify, time.Now().UTC())
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}
	return signed
}

func dialWS(t *testing.T, baseHTTPURL, bearer string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	u, err := url.Parse(baseHTTPURL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	h := http.Header{}
	if strings.TrimSpace(bearer) != "" {
		h.Set("Authorization", "Bearer "+bearer)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocolV1},
		HTTPHeader:   h,
	})
}

func writeEnvelopeWS(t *testing.T, conn *websocket.Conn, env v1.Envelope) {
	t.Helper()
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("conn.Write: %v", err)
	}
}

func readUntilType(t *testing.T, conn *websocket.Conn, typ string, maxReads int) v1.Envelope {
	t.Helper()
	if maxReads <= 0 {
		maxReads = 1
	}
	for i := 0; i < maxReads; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, b, err := conn.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("conn.Read: %v", err)
		}
		var env v1.Envelope
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if env.Type == typ {
			return env
		}
	}
	t.Fatalf("did not receive envelope type %q", typ)
	return v1.Envelope{}
}

func mustJSONRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return b
}

func privateMessageEnvelope(t *testing.T, receiverID, content string) v1.Envelope {
	t.Helper()
	return v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypePrivateMessage,
		ID:      "msg-env-1",
		TS:      time.Now().UTC(),
		Payload: mustJSONRaw(t, v1.PrivateMessagePayload{ReceiverID: receiverID, Content: content}),
	}
}

func waitForRegistryLen(t *testing.T, r *Registry, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if r.Len() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("registry len = %d, want %d", r.Len(), want)
}

func TestGateway_HandshakeRejectsMissingCredential(t *testing.T) {
	env := newGatewayEnv(t)

	_, resp, err := dialWS(t, env.srv.URL, "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatal("expected unauthorized handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 401, got status=%d err=%v", status, err)
	}
	if env.registry.Len() != 0 {
		t.Fatal("rejected handshake left registry state behind")
	}
}

func TestGateway_HandshakeRejectsGarbageToken(t *testing.T) {
	env := newGatewayEnv(t)

	_, resp, err := dialWS(t, env.srv.URL, "not-a-valid-token")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatal("expected unauthorized handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v err=%v", resp, err)
	}
}

func TestGateway_HandshakeRejectsUnverifiedAccount(t *testing.T) {
	env := newGatewayEnv(t)

	tok := env.accessToken(t, "user-unverified", token.VerifyUnverified)
	_, resp, err := dialWS(t, env.srv.URL, tok)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatal("expected forbidden handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 403, got status=%d err=%v", status, err)
	}
	if env.registry.Len() != 0 {
		t.Fatal("rejected handshake left registry state behind")
	}
}

func TestGateway_DeliversToLiveReceiver(t *testing.T) {
	env := newGatewayEnv(t)

	connA, _, err := dialWS(t, env.srv.URL, env.accessToken(t, "alice", token.VerifyVerified))
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer func() { _ = connA.Close(websocket.StatusNormalClosure, "bye") }()

	connB, _, err := dialWS(t, env.srv.URL, env.accessToken(t, "bob", token.VerifyVerified))
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	defer func() { _ = connB.Close(websocket.StatusNormalClosure, "bye") }()

	waitForRegistryLen(t, env.registry, 2)

	writeEnvelopeWS(t, connA, privateMessageEnvelope(t, "bob", "hello bob"))

	rec := readUntilType(t, connB, v1.TypePrivateMessageRec, 4)
	var p v1.PrivateMessageRecPayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		t.Fatalf("decode rec payload: %v", err)
	}
	if p.ID == "" {
		t.Fatal("delivered message has no assigned id")
	}
	if p.SenderID != "alice" || p.ReceiverID != "bob" || p.Content != "hello bob" {
		t.Fatalf("unexpected rec payload: %+v", p)
	}

	// Persistence precedes delivery: the store already has the message.
	out, err := env.store.ListConversation(context.Background(), ListConversationInput{UserA: "alice", UserB: "bob", Limit: 10})
	if err != nil {
		t.Fatalf("ListConversation: %v", err)
	}
	if len(out.Messages) != 1 || out.Messages[0].ID != p.ID {
		t.Fatalf("persisted state mismatch: %+v", out.Messages)
	}
}

func TestGateway_OfflineReceiverPersistedNotDelivered(t *testing.T) {
	env := newGatewayEnv(t)

	connA, _, err := dialWS(t, env.srv.URL, env.accessToken(t, "alice", token.VerifyVerified))
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer func() { _ = connA.Close(websocket.StatusNormalClosure, "bye") }()

	waitForRegistryLen(t, env.registry, 1)

	writeEnvelopeWS(t, connA, privateMessageEnvelope(t, "offline-user", "anyone there"))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		out, err := env.store.ListConversation(context.Background(), ListConversationInput{UserA: "alice", UserB: "offline-user", Limit: 10})
		if err != nil {
			t.Fatalf("ListConversation: %v", err)
		}
		if len(out.Messages) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("message to offline receiver was not persisted")
}

func TestGateway_DisconnectRemovesRegistryEntry(t *testing.T) {
	env := newGatewayEnv(t)

	conn, _, err := dialWS(t, env.srv.URL, env.accessToken(t, "alice", token.VerifyVerified))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	waitForRegistryLen(t, env.registry, 1)

	_ = conn.Close(websocket.StatusNormalClosure, "bye")

	waitForRegistryLen(t, env.registry, 0)
}

func TestGateway_LastConnectionWinsRouting(t *testing.T) {
	env := newGatewayEnv(t)

	// Bob connects twice; the second connection takes over routing.
	oldConn, _, err := dialWS(t, env.srv.URL, env.accessToken(t, "bob", token.VerifyVerified))
	if err != nil {
		t.Fatalf("dial bob (old): %v", err)
	}
	defer func() { _ = oldConn.Close(websocket.StatusNormalClosure, "bye") }()

	waitForRegistryLen(t, env.registry, 1)

	newConn, _, err := dialWS(t, env.srv.URL, env.accessToken(t, "bob", token.VerifyVerified))
	if err != nil {
		t.Fatalf("dial bob (new): %v", err)
	}
	defer func() { _ = newConn.Close(websocket.StatusNormalClosure, "bye") }()

	waitForConnID := func() {
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			if c, ok := env.registry.Lookup("bob"); ok && env.registry.Len() == 1 && c != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatal("registry did not settle after rebind")
	}
	waitForConnID()

	connA, _, err := dialWS(t, env.srv.URL, env.accessToken(t, "alice", token.VerifyVerified))
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer func() { _ = connA.Close(websocket.StatusNormalClosure, "bye") }()

	writeEnvelopeWS(t, connA, privateMessageEnvelope(t, "bob", "which device"))

	rec := readUntilType(t, newConn, v1.TypePrivateMessageRec, 4)
	var p v1.PrivateMessageRecPayload
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		t.Fatalf("decode rec payload: %v", err)
	}
	if p.Content != "which device" {
		t.Fatalf("unexpected content on new connection: %q", p.Content)
	}
}

func TestGateway_ExpiredTokenForcesDisconnect(t *testing.T) {
	t.Setenv("PIPIT_WS_ORIGIN_REQUIRED", "false")

	cfg := token.DefaultConfig()
	cfg.AccessSecret = []byte("access-secret-0123456789abcdefghij")
	cfg.RefreshSecret = []byte("refresh-secret-0123456789abcdefghi")
	cfg.EmailVerifySecret = []byte("verify-secret-0123456789abcdefghij")
	cfg.ForgotPasswordSecret = []byte("forgot-secret-0123456789abcdefghij")
	// exp claims have one-second precision; keep the TTL comfortably above it.
	cfg.AccessTTL = 2 * time.Second

	tokens, err := token.NewService(cfg)
	if err != nil {
		t.Fatalf("token.NewService: %v", err)
	}

	registry := NewRegistry()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw, err := NewGateway(log, registry, NewInMemoryStore(), gate.New(tokens))
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	signed, _, err := tokens.Issue(token.KindAccess, "alice", token.VerifyVerified, time.Now().UTC())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	conn, _, err := dialWS(t, srv.URL, signed)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	waitForRegistryLen(t, registry, 1)

	// Let the handshake credential expire mid-session, then send an event.
	time.Sleep(3500 * time.Millisecond)
	writeEnvelopeWS(t, conn, privateMessageEnvelope(t, "bob", "too late"))

	// The sender gets an error envelope before the forced disconnect.
	errEnv := readUntilType(t, conn, v1.TypeError, 2)
	var p v1.ErrorPayload
	if err := json.Unmarshal(errEnv.Payload, &p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if p.Code != "credential_expired" {
		t.Fatalf("error code = %q, want credential_expired", p.Code)
	}

	waitForRegistryLen(t, registry, 0)
}
