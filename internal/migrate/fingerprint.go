package migrate

import (
	"fmt"
	"strings"
	"time"
)

// Fingerprint identifies a message well enough to detect duplicates across
// servers. IMAP UIDs are not stable between servers, so it derives from the
// Message-ID header, falling back to the size+date tuple for messages that
// carry none. This is a heuristic: two distinct messages sharing a
// Message-ID (or size and date, for ID-less mail) are treated as one and the
// second is never copied.
type Fingerprint string

// MessageInfo is the transferable summary of one source message.
type MessageInfo struct {
	SeqNum    uint32
	MessageID string
	Subject   string
	Date      time.Time
	Size      uint32
	Flags     []string
}

// Fingerprint derives the duplicate-detection key. Flags never participate,
// so a flag-only difference still counts as a duplicate.
func (m MessageInfo) Fingerprint() Fingerprint {
	if fp, ok := MessageIDFingerprint(m.MessageID); ok {
		return fp
	}
	return Fingerprint(fmt.Sprintf("sd:%d:%d", m.Size, m.Date.UTC().Unix()))
}

// MessageIDFingerprint builds the fingerprint for a bare Message-ID header
// value. ok is false when the value is empty.
func MessageIDFingerprint(raw string) (Fingerprint, bool) {
	id := CanonicalMessageID(raw)
	if id == "" {
		return "", false
	}
	return Fingerprint("mid:" + id), true
}

// CanonicalMessageID strips angle brackets and surrounding whitespace from a
// Message-ID and lowercases it, so cosmetic differences between servers do
// not defeat duplicate detection.
func CanonicalMessageID(raw string) string {
	id := strings.TrimSpace(raw)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return strings.ToLower(strings.TrimSpace(id))
}
