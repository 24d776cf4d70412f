package relay

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/novacomp/eml-relay/internal/email"
)

// archiveBody writes the message's rendered HTML body to the body bucket
// under {sender}/{date}.html. A message without any text body is skipped
// silently.
func (d *Dispatcher) archiveBody(ctx context.Context, msg *email.Message, invokedAt time.Time) error {
	body := RenderBody(msg.Root)
	if body == "" {
		d.log.Info("no body found to archive")
		return nil
	}

	key := fmt.Sprintf("%s/%s.html", msg.Sender, invokedAt.Format(DateFormat))
	if err := d.writer.Write(ctx, d.bodyBucket, key, strings.NewReader(body)); err != nil {
		return err
	}
	d.log.Info("body archived", "output_key", key)
	return nil
}

// RenderBody renders the message as a standalone HTML document. The first
// text/html leaf wins; without one, the first text/plain leaf is wrapped
// in <pre>. Inline images referenced by cid: are replaced with base64
// data URIs so the document has no external dependencies.
func RenderBody(root *email.Part) string {
	body := findBody(root, "text/html")
	if body == "" {
		if text := findBody(root, "text/plain"); text != "" {
			body = "<pre>" + html.EscapeString(text) + "</pre>"
		}
	}
	if body == "" {
		return ""
	}

	for _, img := range collectImages(root) {
		ref := img.ContentID
		if ref == "" {
			ref = img.Filename
		}
		if ref == "" {
			continue
		}
		uri := "data:" + img.ContentType + ";base64," + base64.StdEncoding.EncodeToString(img.Body)
		body = strings.ReplaceAll(body, "cid:"+ref, uri)
	}

	trimmed := strings.ToLower(strings.TrimSpace(body))
	if !strings.HasPrefix(trimmed, "<!doctype") && !strings.HasPrefix(trimmed, "<html") {
		body = "<!DOCTYPE html>\n<html>\n<head><meta charset=\"UTF-8\"></head>\n<body>\n" + body + "\n</body>\n</html>\n"
	}
	return body
}

// findBody returns the content of the first leaf whose content type has
// the given prefix and which is not an attachment.
func findBody(root *email.Part, ctype string) string {
	var body string
	var walk func(p *email.Part) bool
	walk = func(p *email.Part) bool {
		if p == nil {
			return false
		}
		if p.Container() {
			for _, child := range p.Children {
				if walk(child) {
					return true
				}
			}
			return false
		}
		if p.Filename == "" && strings.HasPrefix(p.ContentType, ctype) {
			body = string(p.Body)
			return true
		}
		return false
	}
	walk(root)
	return body
}

// collectImages returns all image leaves in document order.
func collectImages(root *email.Part) []*email.Part {
	var imgs []*email.Part
	var walk func(p *email.Part)
	walk = func(p *email.Part) {
		if p == nil {
			return
		}
		if p.Container() {
			for _, child := range p.Children {
				walk(child)
			}
			return
		}
		if strings.HasPrefix(p.ContentType, "image/") {
			imgs = append(imgs, p)
		}
	}
	walk(root)
	return imgs
}
