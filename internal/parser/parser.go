// Package parser parses raw EML bytes into the relay's part tree and
// provides the header decoding helpers built on top of it.
package parser

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/mail"
	"path"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"

	"github.com/novacomp/eml-relay/internal/email"
)

func init() {
	// Register additional charsets that are commonly used in emails
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// Parse parses a raw RFC 5322 email message into a Message with a walkable
// part tree. Malformed sub-parts are logged and skipped; only a message
// that cannot be read at all fails.
func Parse(raw []byte) (*email.Message, error) {
	ent, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	from := ent.Header.Get("From")

	root, err := parseEntity(ent)
	if err != nil {
		return nil, err
	}

	return &email.Message{
		From:   from,
		Sender: ExtractAddress(from),
		Root:   root,
	}, nil
}

// parseEntity converts one MIME entity into a Part, recursing into
// multipart containers. Children that fail to parse are skipped so a
// single broken part cannot take down the whole message.
func parseEntity(ent *message.Entity) (*email.Part, error) {
	ctype, _, err := ent.Header.ContentType()
	if err != nil {
		slog.Warn("failed to parse content type, treating as plain text",
			"content_type", ent.Header.Get("Content-Type"),
			"error", err,
		)
		ctype = "text/plain"
	}

	if mr := ent.MultipartReader(); mr != nil {
		part := &email.Part{
			ContentType: ctype,
			Children:    []*email.Part{},
		}
		for {
			sub, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil && !message.IsUnknownCharset(err) {
				slog.Warn("failed to read next part, stopping traversal",
					"content_type", ctype,
					"error", err,
				)
				break
			}
			child, err := parseEntity(sub)
			if err != nil {
				slog.Warn("failed to parse part, skipping", "error", err)
				continue
			}
			part.Children = append(part.Children, child)
		}
		return part, nil
	}

	body, err := io.ReadAll(ent.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read part body: %w", err)
	}

	return &email.Part{
		ContentType: ctype,
		Filename:    partFilename(ent.Header),
		ContentID:   strings.Trim(ent.Header.Get("Content-Id"), "<>"),
		Body:        body,
	}, nil
}

// partFilename extracts the raw attachment filename from a part's headers,
// checking the Content-Disposition filename first and falling back to the
// Content-Type name parameter. The value is returned undecoded.
func partFilename(h message.Header) string {
	if v := h.Get("Content-Disposition"); v != "" {
		if _, params, err := mime.ParseMediaType(v); err == nil {
			if fn := params["filename"]; fn != "" {
				return fn
			}
		}
	}
	if v := h.Get("Content-Type"); v != "" {
		if _, params, err := mime.ParseMediaType(v); err == nil {
			if name := params["name"]; name != "" {
				return name
			}
		}
	}
	return ""
}

// ExtractAddress extracts the email address from a From header value.
// Display-name forms, bare addresses, and malformed or empty input are all
// tolerated; anything unparseable yields an empty string.
func ExtractAddress(header string) string {
	if strings.TrimSpace(header) == "" {
		return ""
	}
	addr, err := mail.ParseAddress(header)
	if err != nil {
		return ""
	}
	return addr.Address
}

// Extension decodes a possibly MIME-encoded attachment filename and
// returns its lowercased extension without the leading dot. Encoded-word
// segments with mixed or absent charsets are decoded and joined before the
// extension is taken. A decode failure or a dotless name yields an empty
// string, so a broken filename only excludes that one attachment.
func Extension(raw string) string {
	if raw == "" {
		return ""
	}
	dec := &mime.WordDecoder{CharsetReader: charset.Reader}
	name, err := dec.DecodeHeader(raw)
	if err != nil {
		slog.Warn("failed to decode attachment filename",
			"filename", raw,
			"error", err,
		)
		return ""
	}
	ext := path.Ext(name)
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
