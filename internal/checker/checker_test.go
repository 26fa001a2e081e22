package checker

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/fpang/session-check/internal/session"
	"github.com/fpang/session-check/internal/telegram"
)

// fakeClient scripts the remote behaviour for one session.
type fakeClient struct {
	authorized   bool
	connectErr   error
	authErr      error
	signInErr    error
	resolveErr   error
	signedInWith string
	disconnects  int
}

func (f *fakeClient) Connect(context.Context) error { return f.connectErr }

func (f *fakeClient) IsAuthorized(context.Context) (bool, error) { return f.authorized, f.authErr }

func (f *fakeClient) SignIn(_ context.Context, password string) error {
	f.signedInWith = password
	return f.signInErr
}

func (f *fakeClient) ResolveEntity(context.Context, string) error { return f.resolveErr }

func (f *fakeClient) Disconnect(context.Context) error {
	f.disconnects++
	return nil
}

// fixture lays out sessions/, tg_sessions/ and valid/ under a temp dir.
type fixture struct {
	t          *testing.T
	sessions   string
	secrets    string
	valid      string
	clients    map[string]*fakeClient
	dialErrors map[string]error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{
		t:          t,
		sessions:   filepath.Join(base, "sessions"),
		secrets:    filepath.Join(base, "tg_sessions"),
		valid:      filepath.Join(base, "valid"),
		clients:    make(map[string]*fakeClient),
		dialErrors: make(map[string]error),
	}
	for _, dir := range []string{f.sessions, f.secrets} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func (f *fixture) addSession(id string, client *fakeClient) {
	f.t.Helper()
	if err := os.WriteFile(filepath.Join(f.sessions, id+".session"), []byte("blob-"+id), 0o600); err != nil {
		f.t.Fatal(err)
	}
	f.clients[id] = client
}

func (f *fixture) addSidecar(id, content string) {
	f.t.Helper()
	if err := os.WriteFile(filepath.Join(f.secrets, id+".json"), []byte(content), 0o600); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fixture) dial(opts telegram.Options) (telegram.Client, error) {
	id := strings.TrimSuffix(filepath.Base(opts.SessionPath), ".session")
	if err := f.dialErrors[id]; err != nil {
		return nil, err
	}
	c, ok := f.clients[id]
	if !ok {
		f.t.Fatalf("no fake client for %s", id)
	}
	return c, nil
}

func (f *fixture) checker() *Checker {
	return New(Options{
		APIID:      1,
		APIHash:    "hash",
		SecretsDir: f.secrets,
		ValidDir:   f.valid,
	}, f.dial)
}

func (f *fixture) run(c *Checker) *Result {
	f.t.Helper()
	sessions, err := session.List(f.sessions, session.DefaultExt)
	if err != nil {
		f.t.Fatal(err)
	}
	res, err := c.Run(context.Background(), sessions)
	if err != nil {
		f.t.Fatalf("run: %v", err)
	}
	if res.Total() != len(sessions) {
		f.t.Fatalf("outcomes = %d, sessions = %d", res.Total(), len(sessions))
	}
	return res
}

func (f *fixture) validDirContents() []string {
	f.t.Helper()
	entries, err := os.ReadDir(f.valid)
	if err != nil {
		f.t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func ids(outcomes []Outcome) []string {
	var out []string
	for _, o := range outcomes {
		out = append(out, o.Session.ID)
	}
	sort.Strings(out)
	return out
}

func TestRunExample(t *testing.T) {
	f := newFixture(t)
	f.addSession("+1555", &fakeClient{authorized: true})
	f.addSession("+1556", &fakeClient{signInErr: &telegram.RPCError{Code: 401, Message: "SESSION_REVOKED"}})
	f.addSidecar("+1556", `{"twoFA": "pw"}`)

	res := f.run(f.checker())

	if got := ids(res.Valid); len(got) != 1 || got[0] != "+1555" {
		t.Errorf("valid = %v", got)
	}
	if len(res.Invalid) != 1 || res.Invalid[0].Session.ID != "+1556" {
		t.Fatalf("invalid = %+v", res.Invalid)
	}
	if !strings.Contains(res.Invalid[0].Reason, "revoked") {
		t.Errorf("reason should name the fault, got %q", res.Invalid[0].Reason)
	}
	if f.clients["+1556"].signedInWith != "pw" {
		t.Errorf("expected sign-in with sidecar secret, got %q", f.clients["+1556"].signedInWith)
	}
	if got := f.validDirContents(); len(got) != 1 || got[0] != "+1555.session" {
		t.Errorf("valid dir = %v", got)
	}
}

func TestRunClassificationTable(t *testing.T) {
	tests := []struct {
		name      string
		client    *fakeClient
		sidecar   string
		status    Status
		reason    string
		copied    bool
		escalated bool
	}{
		{
			name:   "authorized probe succeeds",
			client: &fakeClient{authorized: true},
			status: StatusValid, copied: true,
		},
		{
			name:    "sign in then probe",
			client:  &fakeClient{},
			sidecar: `{"twoFA": "pw"}`,
			status:  StatusValid, copied: true,
		},
		{
			name:   "banned",
			client: &fakeClient{authorized: true, resolveErr: &telegram.RPCError{Code: 400, Message: "PHONE_NUMBER_BANNED"}},
			status: StatusInvalid, reason: "banned",
		},
		{
			name:   "deactivated",
			client: &fakeClient{connectErr: &telegram.RPCError{Code: 401, Message: "USER_DEACTIVATED_BAN"}},
			status: StatusInvalid, reason: "deactivated",
		},
		{
			name:   "duplicate key",
			client: &fakeClient{authErr: &telegram.RPCError{Code: 406, Message: "AUTH_KEY_DUPLICATED"}},
			status: StatusInvalid, reason: "duplicated",
		},
		{
			name:   "flood wait is optimistic",
			client: &fakeClient{authorized: true, resolveErr: &telegram.RPCError{Code: 420, Message: "FLOOD_WAIT_60"}},
			status: StatusValid, reason: "flood wait", copied: true,
		},
		{
			name:   "hash invalid",
			client: &fakeClient{authorized: true, resolveErr: &telegram.RPCError{Code: 400, Message: "HASH_INVALID"}},
			status: StatusSkipped, reason: ReasonHashInvalid,
		},
		{
			name:   "secret required",
			client: &fakeClient{},
			status: StatusSkipped, reason: ReasonSecretRequired,
		},
		{
			name:    "malformed sidecar",
			client:  &fakeClient{},
			sidecar: `{"twoFA": `,
			status:  StatusSkipped, reason: "sidecar",
		},
		{
			name:   "unknown rpc error",
			client: &fakeClient{authorized: true, resolveErr: &telegram.RPCError{Code: 500, Message: "INTERNAL"}},
			status: StatusSkipped, reason: "unknown", escalated: true,
		},
		{
			name:   "transport error",
			client: &fakeClient{connectErr: errors.New("dial tcp: i/o timeout")},
			status: StatusSkipped, reason: "i/o timeout", escalated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addSession("+1000", tt.client)
			if tt.sidecar != "" {
				f.addSidecar("+1000", tt.sidecar)
			}

			res := f.run(f.checker())

			var o Outcome
			switch tt.status {
			case StatusValid:
				if len(res.Valid) != 1 {
					t.Fatalf("expected valid, got %+v", res)
				}
				o = res.Valid[0]
			case StatusInvalid:
				if len(res.Invalid) != 1 {
					t.Fatalf("expected invalid, got %+v", res)
				}
				o = res.Invalid[0]
			case StatusSkipped:
				if len(res.Skipped) != 1 {
					t.Fatalf("expected skipped, got %+v", res)
				}
				o = res.Skipped[0]
			}

			if !strings.Contains(o.Reason, tt.reason) {
				t.Errorf("reason %q does not contain %q", o.Reason, tt.reason)
			}
			if o.Escalated != tt.escalated {
				t.Errorf("escalated = %v, want %v", o.Escalated, tt.escalated)
			}
			if tt.escalated && res.Escalated != 1 {
				t.Errorf("result escalated = %d, want 1", res.Escalated)
			}

			copied := len(f.validDirContents()) == 1
			if copied != tt.copied {
				t.Errorf("artifact copied = %v, want %v", copied, tt.copied)
			}
			if tt.client.disconnects != 1 {
				t.Errorf("disconnects = %d, want 1", tt.client.disconnects)
			}
		})
	}
}

func TestRunSecretRequiredNeverProbes(t *testing.T) {
	f := newFixture(t)
	// A probe would succeed, but without a secret the session must be skipped.
	client := &fakeClient{}
	f.addSession("+1000", client)
	f.addSidecar("+1000", `{"twoFA": ""}`)

	res := f.run(f.checker())
	if len(res.Skipped) != 1 || res.Skipped[0].Reason != ReasonSecretRequired {
		t.Fatalf("expected secret-required skip, got %+v", res)
	}
	if client.signedInWith != "" {
		t.Error("sign-in should not be attempted without a secret")
	}
}

func TestRunDialFailureContinuesBatch(t *testing.T) {
	f := newFixture(t)
	f.addSession("+1", &fakeClient{})
	f.addSession("+2", &fakeClient{authorized: true})
	f.dialErrors["+1"] = errors.New("artifact unreadable")

	res := f.run(f.checker())
	if len(res.Valid) != 1 || res.Valid[0].Session.ID != "+2" {
		t.Errorf("expected +2 valid, got %+v", res.Valid)
	}
	if len(res.Skipped) != 1 || !res.Skipped[0].Escalated {
		t.Errorf("expected escalated skip for +1, got %+v", res.Skipped)
	}
}

func TestRunProgressLines(t *testing.T) {
	f := newFixture(t)
	f.addSession("+1", &fakeClient{authorized: true})
	f.addSession("+2", &fakeClient{})
	f.addSession("+3", &fakeClient{authorized: true})

	var buf bytes.Buffer
	f.run(f.checker().WithProgress(&buf))

	want := "1/3 sessions checked\n2/3 sessions checked\n3/3 sessions checked\n"
	if buf.String() != want {
		t.Errorf("progress = %q, want %q", buf.String(), want)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addSession("+1", &fakeClient{authorized: true})
	f.addSession("+2", &fakeClient{authorized: true, resolveErr: &telegram.RPCError{Code: 401, Message: "SESSION_REVOKED"}})

	// Stale leftovers from an earlier run must disappear.
	if err := os.MkdirAll(f.valid, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.valid, "+9.session"), []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}

	f.run(f.checker())
	first := f.validDirContents()
	f.run(f.checker())
	second := f.validDirContents()

	if len(first) != 1 || first[0] != "+1.session" {
		t.Errorf("first run valid dir = %v", first)
	}
	if strings.Join(first, ",") != strings.Join(second, ",") {
		t.Errorf("directory changed between runs: %v vs %v", first, second)
	}
}

type recordingJournal struct {
	outcomes []Outcome
}

func (j *recordingJournal) Record(o Outcome) error {
	j.outcomes = append(j.outcomes, o)
	return nil
}

func TestRunJournal(t *testing.T) {
	f := newFixture(t)
	f.addSession("+1", &fakeClient{authorized: true})
	f.addSession("+2", &fakeClient{})

	j := &recordingJournal{}
	res := f.run(f.checker().WithJournal(j))

	if len(j.outcomes) != res.Total() {
		t.Errorf("journal saw %d outcomes, result has %d", len(j.outcomes), res.Total())
	}
	if res.RunID == "" {
		t.Error("expected a run ID")
	}
	if res.Duration() < 0 {
		t.Error("negative duration")
	}
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t)
	f.addSession("+1", &fakeClient{authorized: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sessions, _ := session.List(f.sessions, session.DefaultExt)
	res, err := f.checker().Run(ctx, sessions)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res == nil || res.Total() != 0 {
		t.Errorf("expected empty partial result, got %+v", res)
	}
}

func TestOutcomeForNil(t *testing.T) {
	o := outcomeFor(session.Session{ID: "+1"}, nil)
	if o.Status != StatusValid {
		t.Errorf("nil error should be valid, got %s", o.Status)
	}
}

func TestRunRefusesValidDirHoldingInputs(t *testing.T) {
	f := newFixture(t)
	f.addSession("+1", &fakeClient{authorized: true})
	f.addSession("+2", &fakeClient{authorized: true})
	sessions, _ := session.List(f.sessions, session.DefaultExt)

	tests := []struct {
		name     string
		validDir string
	}{
		{"unset", ""},
		{"same as sessions", f.sessions},
		{"parent of sessions", filepath.Dir(f.sessions)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(Options{APIID: 1, APIHash: "hash", SecretsDir: f.secrets, ValidDir: tt.validDir}, f.dial)
			res, err := c.Run(context.Background(), sessions)
			if !errors.Is(err, ErrValidDirUnsafe) {
				t.Fatalf("expected ErrValidDirUnsafe, got %v", err)
			}
			if res != nil {
				t.Errorf("no sessions should be checked, got %+v", res)
			}
			entries, _ := os.ReadDir(f.sessions)
			if len(entries) != 2 {
				t.Errorf("input artifacts were touched: %d left", len(entries))
			}
		})
	}
}
