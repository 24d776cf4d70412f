// Package relay implements the attachment extraction pipeline: walking the
// parsed part tree, filtering by the extension allow-list, naming output
// objects, and dispatching writes with per-attachment failure isolation.
package relay

import (
	"github.com/novacomp/eml-relay/internal/email"
	"github.com/novacomp/eml-relay/internal/parser"
)

// CollectAttachments flattens the part tree into its filename-bearing
// leaves, in document order. Containers are recursed into and never
// emitted, regardless of their own headers. Each attachment carries the
// decoded extension of its filename.
func CollectAttachments(root *email.Part) []email.Attachment {
	var atts []email.Attachment

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
		if p.Filename == "" {
			return
		}
		atts = append(atts, email.Attachment{
			Filename:  p.Filename,
			Extension: parser.Extension(p.Filename),
			Part:      p,
		})
	}
	walk(root)

	return atts
}
