package imapx

import (
	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Older servers hand out messages labeled with encodings go-message does not
// know out of the box; register the usual suspects.
func init() {
	for _, name := range []string{"ascii", "us-ascii", "ASCII", "US-ASCII"} {
		charset.RegisterEncoding(name, unicode.UTF8)
	}
	for _, name := range []string{"windows-1252", "WINDOWS-1252", "cp1252", "CP1252"} {
		charset.RegisterEncoding(name, charmap.Windows1252)
	}
	for _, name := range []string{"iso-8859-1", "ISO-8859-1", "latin1", "LATIN1"} {
		charset.RegisterEncoding(name, charmap.ISO8859_1)
	}
}
