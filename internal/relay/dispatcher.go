package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/novacomp/eml-relay/internal/email"
	"github.com/novacomp/eml-relay/internal/event"
	"github.com/novacomp/eml-relay/internal/parser"
	"github.com/novacomp/eml-relay/internal/storage"
)

// Dispatcher processes one stored-email notification end-to-end: fetch,
// parse, walk, filter, name, and write each accepted attachment. Storage
// access and logging are injected collaborators.
type Dispatcher struct {
	fetcher      storage.Fetcher
	writer       storage.Writer
	targetBucket string
	bodyBucket   string
	log          *slog.Logger
	now          func() time.Time
}

// Config holds the collaborators and settings for creating a Dispatcher.
type Config struct {
	Fetcher      storage.Fetcher
	Writer       storage.Writer
	TargetBucket string
	// BodyBucket enables HTML body archiving when non-empty.
	BodyBucket string
	Logger     *slog.Logger
	// Now overrides the invocation clock, used for testing.
	Now func() time.Time
}

// New creates a Dispatcher from the given configuration.
func New(cfg Config) *Dispatcher {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		fetcher:      cfg.Fetcher,
		writer:       cfg.Writer,
		targetBucket: cfg.TargetBucket,
		bodyBucket:   cfg.BodyBucket,
		log:          log,
		now:          now,
	}
}

// Process handles one notification record. Fetch and parse failures fail
// the invocation; everything after is recovered per attachment, so one
// broken attachment never blocks the rest. The returned summary reports
// what was written; zero valid attachments is still a success.
func (d *Dispatcher) Process(ctx context.Context, ref event.ObjectRef) (*email.Summary, error) {
	log := d.log.With("bucket", ref.Bucket, "key", ref.Key)
	log.Info("processing stored email")

	raw, err := d.fetcher.Fetch(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source object: %w", err)
	}

	msg, err := parser.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source object: %w", err)
	}
	if msg.Sender == "" {
		// Preserved behavior: output keys get an empty prefix.
		log.Warn("no sender address parsed, writing under empty prefix", "from", msg.From)
	} else {
		log.Info("sender extracted", "sender", msg.Sender)
	}

	atts := CollectAttachments(msg.Root)
	for _, att := range atts {
		log.Info("attachment found", "filename", att.Filename, "extension", att.Extension)
	}

	valid := FilterAllowed(atts)
	log.Info("attachments filtered", "found", len(atts), "valid", len(valid))

	// One clock read per invocation; every output key shares the stamp.
	invokedAt := d.now()
	named := NameKeys(valid, msg.Sender, invokedAt)

	sum := &email.Summary{
		Bucket: ref.Bucket,
		Key:    ref.Key,
		Sender: msg.Sender,
		Found:  len(atts),
		Valid:  len(valid),
	}

	for _, n := range named {
		if err := d.writeAttachment(ctx, n); err != nil {
			log.Error("failed to process attachment",
				"filename", n.Attachment.Filename,
				"output_key", n.Key,
				"error", err,
			)
			sum.Failed++
			continue
		}
		log.Info("attachment processed", "output_key", n.Key)
		sum.Written++
		sum.Keys = append(sum.Keys, n.Key)
	}

	if d.bodyBucket != "" {
		if err := d.archiveBody(ctx, msg, invokedAt); err != nil {
			log.Error("failed to archive body", "error", err)
		}
	}

	return sum, nil
}

// writeAttachment stages one payload through its own temporary file and
// uploads it. The file is removed on every exit path, so a failed upload
// never leaks temporary storage.
func (d *Dispatcher) writeAttachment(ctx context.Context, n Named) error {
	tmp, err := os.CreateTemp("", "eml-relay-*."+n.Attachment.Extension)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(n.Attachment.Part.Body); err != nil {
		return fmt.Errorf("failed to stage payload: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind staged payload: %w", err)
	}

	if err := d.writer.Write(ctx, d.targetBucket, n.Key, tmp); err != nil {
		return fmt.Errorf("failed to upload: %w", err)
	}
	return nil
}
