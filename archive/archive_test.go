package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/biotel-io/camsync/types"
)

// putRecorder captures PutObject inputs for assertions.
type putRecorder struct {
	mu     sync.Mutex
	puts   []recordedPut
	failAt int // 1-based index of the call that fails; 0 means never
	err    error
}

type recordedPut struct {
	bucket      string
	key         string
	contentType string
	body        []byte
}

func (p *putRecorder) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failAt > 0 && len(p.puts)+1 == p.failAt {
		return nil, p.err
	}

	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	p.puts = append(p.puts, recordedPut{
		bucket:      deref(params.Bucket),
		key:         deref(params.Key),
		contentType: deref(params.ContentType),
		body:        body,
	})
	return &s3.PutObjectOutput{}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var _ ObjectPutter = (*putRecorder)(nil)

func testMeta() *types.SessionMeta {
	return &types.SessionMeta{
		SessionID: "abc-123",
		Subject:   "p01",
		StartedAt: time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC),
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing bucket")
	}

	cfg.Bucket = "my-bucket"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestKey_Layout(t *testing.T) {
	u := NewWithClient(&putRecorder{}, Config{Bucket: "b"})

	got := u.Key(testMeta(), "session.avi")
	want := "subject=p01/day=2026-02-07/session_id=abc-123/session.avi"
	if got != want {
		t.Errorf("key: got %q, want %q", got, want)
	}
}

func TestKey_WithPrefix(t *testing.T) {
	u := NewWithClient(&putRecorder{}, Config{Bucket: "b", Prefix: "physio"})

	got := u.Key(testMeta(), "ts.csv")
	want := "physio/subject=p01/day=2026-02-07/session_id=abc-123/ts.csv"
	if got != want {
		t.Errorf("key: got %q, want %q", got, want)
	}
}

func TestKey_EmptySubject(t *testing.T) {
	u := NewWithClient(&putRecorder{}, Config{Bucket: "b"})
	meta := testMeta()
	meta.Subject = ""

	got := u.Key(meta, "session.avi")
	want := "subject=unspecified/day=2026-02-07/session_id=abc-123/session.avi"
	if got != want {
		t.Errorf("key: got %q, want %q", got, want)
	}
}

func TestUploadSession_BothArtifacts(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "session.avi")
	index := filepath.Join(dir, "session_timestamps.csv")
	if err := os.WriteFile(video, []byte("avi-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(index, []byte("frame_number,timestamp\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &putRecorder{}
	u := NewWithClient(rec, Config{Bucket: "my-bucket"})

	keys, err := u.UploadSession(context.Background(), testMeta(), video, index)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("keys: got %d, want 2", len(keys))
	}

	if len(rec.puts) != 2 {
		t.Fatalf("puts: got %d, want 2", len(rec.puts))
	}
	if rec.puts[0].bucket != "my-bucket" {
		t.Errorf("bucket: got %q", rec.puts[0].bucket)
	}
	if rec.puts[0].contentType != "video/x-msvideo" {
		t.Errorf("video content type: got %q", rec.puts[0].contentType)
	}
	if string(rec.puts[0].body) != "avi-bytes" {
		t.Errorf("video body: got %q", rec.puts[0].body)
	}
	if rec.puts[1].contentType != "text/csv" {
		t.Errorf("index content type: got %q", rec.puts[1].contentType)
	}
}

func TestUploadSession_SkipsEmptyPaths(t *testing.T) {
	dir := t.TempDir()
	index := filepath.Join(dir, "ts.csv")
	if err := os.WriteFile(index, []byte("frame_number,timestamp\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &putRecorder{}
	u := NewWithClient(rec, Config{Bucket: "b"})

	keys, err := u.UploadSession(context.Background(), testMeta(), "", index)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("keys: got %d, want 1", len(keys))
	}
	if filepath.Base(keys[0]) != "ts.csv" {
		t.Errorf("key: got %q", keys[0])
	}
}

func TestUploadSession_MissingFile(t *testing.T) {
	rec := &putRecorder{}
	u := NewWithClient(rec, Config{Bucket: "b"})

	_, err := u.UploadSession(context.Background(), testMeta(), "/nonexistent/video.avi", "")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestUploadSession_PartialFailureReturnsWrittenKeys(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "session.avi")
	index := filepath.Join(dir, "ts.csv")
	for _, p := range []string{video, index} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	rec := &putRecorder{failAt: 2, err: context.DeadlineExceeded}
	u := NewWithClient(rec, Config{Bucket: "b"})

	keys, err := u.UploadSession(context.Background(), testMeta(), video, index)
	if err == nil {
		t.Fatal("expected error from second put")
	}
	if len(keys) != 1 {
		t.Errorf("keys written before failure: got %d, want 1", len(keys))
	}
}
