package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/novacomp/eml-relay/internal/event"
)

// fakeStore is an in-memory Fetcher/Writer with per-key write failure
// injection.
type fakeStore struct {
	objects  map[string][]byte
	written  map[string]string // "bucket/key" -> contents
	keys     []string          // write order
	fetchErr error
	failKeys map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:  make(map[string][]byte),
		written:  make(map[string]string),
		failKeys: make(map[string]bool),
	}
}

func (f *fakeStore) Fetch(_ context.Context, bucket, key string) ([]byte, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (f *fakeStore) Write(_ context.Context, bucket, key string, body io.Reader) error {
	if f.failKeys[key] {
		return errors.New("injected write failure")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.written[bucket+"/"+key] = string(data)
	f.keys = append(f.keys, key)
	return nil
}

var testClock = func() time.Time {
	return time.Date(2024, time.January, 5, 12, 0, 0, 0, time.UTC)
}

func newTestDispatcher(store *fakeStore, bodyBucket string) *Dispatcher {
	return New(Config{
		Fetcher:      store,
		Writer:       store,
		TargetBucket: "outbound",
		BodyBucket:   bodyBucket,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:          testClock,
	})
}

func emlWithAttachments(from string, attachments ...[2]string) []byte {
	lines := []string{
		"From: " + from,
		"To: bitacoras@example.com",
		"Subject: Documentos",
		"Content-Type: multipart/mixed; boundary=b1",
		"",
		"--b1",
		"Content-Type: text/plain",
		"",
		"See attached.",
	}
	for _, att := range attachments {
		lines = append(lines,
			"--b1",
			"Content-Type: application/octet-stream",
			"Content-Disposition: attachment; filename=\""+att[0]+"\"",
			"",
			att[1],
		)
	}
	lines = append(lines, "--b1--", "")
	return []byte(strings.Join(lines, "\r\n"))
}

func process(t *testing.T, store *fakeStore, d *Dispatcher) *summaryResult {
	t.Helper()
	sum, err := d.Process(context.Background(), event.ObjectRef{Bucket: "inbound", Key: "mail.eml"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &summaryResult{sum.Found, sum.Valid, sum.Written, sum.Failed, sum.Keys}
}

type summaryResult struct {
	found, valid, written, failed int
	keys                          []string
}

func TestProcessSingleAttachmentNoSuffix(t *testing.T) {
	t.Parallel()

	// Scenario A: one allow-listed attachment, case-insensitive extension.
	store := newFakeStore()
	store.objects["inbound/mail.eml"] = emlWithAttachments(
		"\"Jane Doe\" <jane@example.com>",
		[2]string{"invoice.PDF", "pdf-bytes"},
	)

	sum := process(t, store, newTestDispatcher(store, ""))

	if sum.written != 1 || sum.failed != 0 {
		t.Fatalf("written/failed: got %d/%d, want 1/0", sum.written, sum.failed)
	}
	got, ok := store.written["outbound/jane@example.com/2024-Jan-05.pdf"]
	if !ok {
		t.Fatalf("expected key jane@example.com/2024-Jan-05.pdf, wrote %v", store.keys)
	}
	if got != "pdf-bytes" {
		t.Errorf("payload: got %q, want %q", got, "pdf-bytes")
	}
}

func TestProcessFilteredToOneNoSuffix(t *testing.T) {
	t.Parallel()

	// Scenario B: two attachments, one rejected, the survivor gets no
	// numeric suffix.
	store := newFakeStore()
	store.objects["inbound/mail.eml"] = emlWithAttachments(
		"jane@example.com",
		[2]string{"a.csv", "csv-bytes"},
		[2]string{"b.exe", "exe-bytes"},
	)

	sum := process(t, store, newTestDispatcher(store, ""))

	if sum.found != 2 || sum.valid != 1 || sum.written != 1 {
		t.Fatalf("found/valid/written: got %d/%d/%d, want 2/1/1", sum.found, sum.valid, sum.written)
	}
	if _, ok := store.written["outbound/jane@example.com/2024-Jan-05.csv"]; !ok {
		t.Errorf("expected unsuffixed csv key, wrote %v", store.keys)
	}
}

func TestProcessMultipleValidSuffixedInOrder(t *testing.T) {
	t.Parallel()

	// Scenario C: suffixes follow the filtered sequence, which preserves
	// document order.
	store := newFakeStore()
	store.objects["inbound/mail.eml"] = emlWithAttachments(
		"jane@example.com",
		[2]string{"a.csv", "csv-bytes"},
		[2]string{"b.pdf", "pdf-bytes"},
		[2]string{"c.exe", "exe-bytes"},
	)

	sum := process(t, store, newTestDispatcher(store, ""))

	wantKeys := []string{
		"jane@example.com/2024-Jan-05_1.csv",
		"jane@example.com/2024-Jan-05_2.pdf",
	}
	if sum.written != 2 {
		t.Fatalf("written: got %d, want 2", sum.written)
	}
	for i, want := range wantKeys {
		if store.keys[i] != want {
			t.Errorf("key[%d]: got %q, want %q", i, store.keys[i], want)
		}
	}
}

func TestProcessWriteFailureIsolated(t *testing.T) {
	t.Parallel()

	// Scenario D: one failed write is recorded, the rest still land, and
	// the invocation succeeds.
	store := newFakeStore()
	store.objects["inbound/mail.eml"] = emlWithAttachments(
		"jane@example.com",
		[2]string{"a.csv", "csv-bytes"},
		[2]string{"b.pdf", "pdf-bytes"},
	)
	store.failKeys["jane@example.com/2024-Jan-05_1.csv"] = true

	sum := process(t, store, newTestDispatcher(store, ""))

	if sum.written != 1 || sum.failed != 1 {
		t.Fatalf("written/failed: got %d/%d, want 1/1", sum.written, sum.failed)
	}
	if _, ok := store.written["outbound/jane@example.com/2024-Jan-05_2.pdf"]; !ok {
		t.Errorf("expected pdf still written, wrote %v", store.keys)
	}
	if len(sum.keys) != 1 || sum.keys[0] != "jane@example.com/2024-Jan-05_2.pdf" {
		t.Errorf("summary keys: got %v", sum.keys)
	}
}

func TestProcessNoAttachmentsIsSuccess(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.objects["inbound/mail.eml"] = []byte(strings.Join([]string{
		"From: jane@example.com",
		"Subject: Nothing attached",
		"Content-Type: text/plain",
		"",
		"Just a body.",
	}, "\r\n"))

	sum := process(t, store, newTestDispatcher(store, ""))

	if sum.found != 0 || sum.written != 0 || sum.failed != 0 {
		t.Errorf("summary: got %+v, want all zero", sum)
	}
	if len(store.written) != 0 {
		t.Errorf("written: got %v, want none", store.written)
	}
}

func TestProcessUndecodableFilenameExcluded(t *testing.T) {
	t.Parallel()

	// A broken filename excludes only that attachment.
	store := newFakeStore()
	store.objects["inbound/mail.eml"] = emlWithAttachments(
		"jane@example.com",
		[2]string{"=?X-NO-SUCH-CHARSET?Q?informe.pdf?=", "broken-bytes"},
		[2]string{"ok.pdf", "pdf-bytes"},
	)

	sum := process(t, store, newTestDispatcher(store, ""))

	if sum.found != 2 || sum.valid != 1 || sum.written != 1 {
		t.Fatalf("found/valid/written: got %d/%d/%d, want 2/1/1", sum.found, sum.valid, sum.written)
	}
	if _, ok := store.written["outbound/jane@example.com/2024-Jan-05.pdf"]; !ok {
		t.Errorf("expected surviving pdf unsuffixed, wrote %v", store.keys)
	}
}

func TestProcessEmptySenderPrefix(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.objects["inbound/mail.eml"] = emlWithAttachments(
		"<<broken header",
		[2]string{"a.txt", "text"},
	)

	sum := process(t, store, newTestDispatcher(store, ""))

	if sum.written != 1 {
		t.Fatalf("written: got %d, want 1", sum.written)
	}
	if _, ok := store.written["outbound//2024-Jan-05.txt"]; !ok {
		t.Errorf("expected empty-prefix key, wrote %v", store.keys)
	}
}

func TestProcessFetchFailureFatal(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.fetchErr = errors.New("no such key")

	d := newTestDispatcher(store, "")
	if _, err := d.Process(context.Background(), event.ObjectRef{Bucket: "inbound", Key: "gone.eml"}); err == nil {
		t.Error("expected error when fetch fails")
	}
}

func TestProcessArchivesBody(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.objects["inbound/mail.eml"] = []byte(strings.Join([]string{
		"From: jane@example.com",
		"Subject: Report",
		"Content-Type: multipart/mixed; boundary=b1",
		"",
		"--b1",
		"Content-Type: text/html",
		"",
		"<html><body><p>Informe</p></body></html>",
		"--b1--",
		"",
	}, "\r\n"))

	sum := process(t, store, newTestDispatcher(store, "body-archive"))

	if sum.written != 0 {
		t.Errorf("written: got %d, want 0", sum.written)
	}
	body, ok := store.written["body-archive/jane@example.com/2024-Jan-05.html"]
	if !ok {
		t.Fatalf("expected archived body, wrote %v", store.keys)
	}
	if !strings.Contains(body, "<p>Informe</p>") {
		t.Errorf("body: got %q", body)
	}
}
