// Package email defines the parsed email data model shared across the relay.
package email

// Part is one node in a parsed message's content tree. A part is either a
// multipart container (Children non-nil) or a leaf carrying decoded content.
// Containers are recursed during traversal but never republished themselves.
type Part struct {
	ContentType string
	// Filename is the attachment filename exactly as it appeared on the
	// wire, possibly still RFC 2047 encoded. Empty for body parts.
	Filename string
	// ContentID is the Content-Id header value without angle brackets,
	// used to resolve cid: references when archiving HTML bodies.
	ContentID string
	Body      []byte
	Children  []*Part
}

// Container reports whether the part is a multipart container.
func (p *Part) Container() bool {
	return p.Children != nil
}

// Message is a parsed email: the raw From header, the best-effort sender
// address extracted from it, and the root of the part tree.
type Message struct {
	From   string
	Sender string
	Root   *Part
}

// Attachment pairs a filename-bearing leaf part with its decoded extension.
// Filename is raw and possibly MIME-encoded; Extension is already decoded
// and lowercased, without the leading dot. Extension is empty when the
// filename has no dot or could not be decoded.
type Attachment struct {
	Filename  string
	Extension string
	Part      *Part
}

// Summary reports the outcome of processing one notification record.
type Summary struct {
	Bucket  string
	Key     string
	Sender  string
	Found   int // filename-bearing leaf parts seen
	Valid   int // survivors of the extension allow-list
	Written int
	Failed  int
	Keys    []string // output keys actually written, in order
}
