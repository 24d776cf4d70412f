package relay

import (
	"fmt"
	"sort"
	"time"

	"github.com/novacomp/eml-relay/internal/email"
)

// DateFormat is the date stamp used in output keys, e.g. "2024-Jan-05".
const DateFormat = "2006-Jan-02"

// allowed is the fixed set of attachment extensions the relay republishes.
var allowed = map[string]struct{}{
	"docx": {},
	"csv":  {},
	"html": {},
	"txt":  {},
	"pdf":  {},
	"md":   {},
	"doc":  {},
	"xlsx": {},
	"xls":  {},
}

// AllowedExtensions returns the allow-list in sorted order, for logs and
// notices.
func AllowedExtensions() []string {
	exts := make([]string, 0, len(allowed))
	for ext := range allowed {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// FilterAllowed keeps the attachments whose extension is allow-listed,
// preserving order. Extensions are already lowercased, so an undecodable
// filename (empty extension) is always excluded.
func FilterAllowed(atts []email.Attachment) []email.Attachment {
	valid := make([]email.Attachment, 0, len(atts))
	for _, att := range atts {
		if _, ok := allowed[att.Extension]; ok {
			valid = append(valid, att)
		}
	}
	return valid
}

// Named pairs an accepted attachment with its destination key.
type Named struct {
	Attachment email.Attachment
	Key        string
}

// NameKeys assigns each accepted attachment its output key. A single
// attachment gets {sender}/{date}.{ext}; with several, attachment i gets a
// 1-based _N suffix following the filtered order. The date stamp comes
// from the caller so every key in one invocation shares it.
func NameKeys(atts []email.Attachment, sender string, now time.Time) []Named {
	date := now.Format(DateFormat)
	named := make([]Named, 0, len(atts))
	for i, att := range atts {
		var key string
		if len(atts) > 1 {
			key = fmt.Sprintf("%s/%s_%d.%s", sender, date, i+1, att.Extension)
		} else {
			key = fmt.Sprintf("%s/%s.%s", sender, date, att.Extension)
		}
		named = append(named, Named{Attachment: att, Key: key})
	}
	return named
}
