package telegram

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// newTestGateway starts a fake gateway. authorized controls the
// authorization endpoint; resolveErr, if set, is returned by resolve.
func newTestGateway(t *testing.T, authorized bool, resolveErr string) (*httptest.Server, *callLog) {
	t.Helper()
	calls := &callLog{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/connections", func(w http.ResponseWriter, r *http.Request) {
		calls.add("connect")
		var req connectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode connect request: %v", err)
		}
		if req.APIID != 12345 || req.APIHash != "hash" {
			t.Errorf("unexpected credentials: %d/%s", req.APIID, req.APIHash)
		}
		blob, _ := base64.StdEncoding.DecodeString(req.Session)
		if string(blob) != "session-bytes" {
			t.Errorf("unexpected session blob %q", blob)
		}
		json.NewEncoder(w).Encode(connectResponse{ID: "conn-1"})
	})
	mux.HandleFunc("GET /v1/connections/conn-1/authorization", func(w http.ResponseWriter, r *http.Request) {
		calls.add("authorization")
		json.NewEncoder(w).Encode(authorizationResponse{Authorized: authorized})
	})
	mux.HandleFunc("POST /v1/connections/conn-1/sign-in", func(w http.ResponseWriter, r *http.Request) {
		calls.add("sign-in")
		var req signInRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Password != "hunter2" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":400,"message":"PASSWORD_HASH_INVALID"}}`))
			return
		}
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("POST /v1/connections/conn-1/resolve", func(w http.ResponseWriter, r *http.Request) {
		calls.add("resolve")
		if resolveErr != "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(resolveErr))
			return
		}
		json.NewEncoder(w).Encode(resolveResponse{ID: 777000, Type: "channel"})
	})
	mux.HandleFunc("DELETE /v1/connections/conn-1", func(w http.ResponseWriter, r *http.Request) {
		calls.add("disconnect")
		w.WriteHeader(http.StatusNoContent)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, calls
}

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func writeArtifact(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "+1555.session")
	if err := os.WriteFile(path, []byte("session-bytes"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGatewayClientHappyPath(t *testing.T) {
	server, calls := newTestGateway(t, false, "")
	ctx := context.Background()

	client, err := NewGatewayClient(server.URL, Options{
		SessionPath: writeArtifact(t),
		APIID:       12345,
		APIHash:     "hash",
		Timeout:     5 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	authorized, err := client.IsAuthorized(ctx)
	if err != nil {
		t.Fatalf("authorization: %v", err)
	}
	if authorized {
		t.Error("expected unauthorized session")
	}
	if err := client.SignIn(ctx, "hunter2"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := client.ResolveEntity(ctx, "https://t.me/telegram"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := client.Disconnect(ctx); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	// Second disconnect is a no-op.
	if err := client.Disconnect(ctx); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}

	got := calls.list()
	want := []string{"connect", "authorization", "sign-in", "resolve", "disconnect"}
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestGatewayClientRPCError(t *testing.T) {
	server, _ := newTestGateway(t, true, `{"error":{"code":401,"message":"SESSION_REVOKED"}}`)
	ctx := context.Background()

	client, err := NewGatewayClient(server.URL, Options{SessionPath: writeArtifact(t), APIID: 12345, APIHash: "hash"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Disconnect(ctx)

	err = client.ResolveEntity(ctx, "https://t.me/telegram")
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if rpcErr.Code != 401 || rpcErr.Message != "SESSION_REVOKED" {
		t.Errorf("unexpected rpc error: %+v", rpcErr)
	}
	if Classify(err).Kind != FaultRevoked {
		t.Errorf("expected revoked fault, got %v", Classify(err).Kind)
	}
}

func TestGatewayClientStatusWithoutBody(t *testing.T) {
	server, _ := newTestGateway(t, true, "oops")
	ctx := context.Background()

	client, _ := NewGatewayClient(server.URL, Options{SessionPath: writeArtifact(t), APIID: 12345, APIHash: "hash"})
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	err := client.ResolveEntity(ctx, "@telegram")
	if err == nil {
		t.Fatal("expected error")
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		t.Errorf("plain HTTP failure should not be an RPCError: %v", err)
	}
}

func TestGatewayClientNotConnected(t *testing.T) {
	client, err := NewGatewayClient("http://127.0.0.1:1", Options{SessionPath: "unused"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.IsAuthorized(context.Background()); !errors.Is(err, errNotConnected) {
		t.Errorf("expected errNotConnected, got %v", err)
	}
	if err := client.Disconnect(context.Background()); err != nil {
		t.Errorf("disconnect without connection should be a no-op, got %v", err)
	}
}

func TestGatewayClientMissingArtifact(t *testing.T) {
	client, _ := NewGatewayClient("http://127.0.0.1:1", Options{SessionPath: filepath.Join(t.TempDir(), "missing.session")})
	if err := client.Connect(context.Background()); err == nil {
		t.Error("expected error for missing artifact")
	}
}

func TestNewGatewayClientDefaults(t *testing.T) {
	client, err := NewGatewayClient("http://gateway.local/", Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.httpClient.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", client.httpClient.Timeout, DefaultTimeout)
	}
	if client.baseURL != "http://gateway.local" {
		t.Errorf("baseURL = %q", client.baseURL)
	}

	if _, err := NewGatewayClient("not a url", Options{}); err == nil {
		t.Error("expected error for invalid gateway URL")
	}
}
