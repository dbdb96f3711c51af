package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/launchpad/internal/auth"
	"github.com/hitoshi/launchpad/internal/model"
)

// fakeRecorder はmetrics.Recorderのテスト用実装。
type fakeRecorder struct {
	mu          sync.Mutex
	routes      []string
	statuses    []int
	rateLimited []string
	denials     []string
}

func (f *fakeRecorder) RecordRequest(method, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, method+" "+route)
	f.statuses = append(f.statuses, status)
}

func (f *fakeRecorder) RecordAuthzDenial(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denials = append(f.denials, reason)
}

func (f *fakeRecorder) RecordRateLimitRejection(limit string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rateLimited = append(f.rateLimited, limit)
}

func (f *fakeRecorder) RecordUpstreamCall(string, bool, time.Duration) {}
func (f *fakeRecorder) RecordSessionsCleaned(int64) {}

// fakeResolver はIdentityResolverのテスト用実装。
type fakeResolver struct {
	user   *model.User
	method auth.Method
	err    error
	calls  int
}

func (f *fakeResolver) Resolve(*http.Request) (*model.User, auth.Method, error) {
	f.calls++
	return f.user, f.method, f.err
}

// captureLogs はテスト中のslogデフォルトロガーの出力をバッファに差し替える。
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

// logEntries はJSONログを1行ずつデコードする。
func logEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	dec := json.NewDecoder(bytes.NewReader(buf.Bytes()))
	for dec.More() {
		var entry map[string]any
		if err := dec.Decode(&entry); err != nil {
			t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
		}
		entries = append(entries, entry)
	}
	return entries
}

func decodeErrorBody(t *testing.T, b []byte) string {
	t.Helper()
	var body ErrorBody
	if err := json.Unmarshal(b, &body); err != nil {
		t.Fatalf("failed to decode error body %q: %v", b, err)
	}
	return body.Error
}
