package files

import (
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"cloudvault-backend/internal/shared/util"
)

// servedName returns the name with an extension appended when it has none.
func servedName(name, mimeType string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "file"
	}
	if ext := path.Ext(name); ext != "" && ext != "." {
		return name
	}
	return strings.TrimRight(name, ".") + extensionFor(mimeType)
}

// extensionFor maps a media type to a file extension. Registered types use
// their canonical extension; others fall back to the subtype.
func extensionFor(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil || mt == "" || mt == "application/octet-stream" {
		return ""
	}
	if m := mimetype.Lookup(mt); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	_, sub, ok := strings.Cut(mt, "/")
	if !ok {
		return ""
	}
	sub = strings.TrimPrefix(sub, "x-")
	if i := strings.IndexAny(sub, "+."); i > 0 {
		sub = sub[:i]
	}
	sub = util.SafeHeaderName(sub)
	if sub == "" || sub == "file" {
		return ""
	}
	return "." + sub
}

// contentDisposition renders the header with a plain ASCII filename and an
// RFC 5987 filename* carrying the UTF-8 name.
func contentDisposition(disposition, name string) string {
	if disposition != DispositionInline {
		disposition = DispositionAttachment
	}
	return disposition + `; filename="` + util.SafeHeaderName(name) + `"; filename*=UTF-8''` + encodeRFC5987(name)
}

func encodeRFC5987(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
