package imapx

import (
	"bytes"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message"

	"github.com/mailferry/mailferry/internal/migrate"
)

// Prepare creates the destination folder if needed, selects it, and returns
// the fingerprints of the messages it already holds. Create is best-effort:
// most servers answer an existing name with a plain NO, and the Select below
// is what decides whether the folder is usable.
func (s *Session) Prepare(folder string) (map[migrate.Fingerprint]struct{}, error) {
	if err := s.c.Create(folder); err != nil {
		s.log.Debugf("create %q: %v", folder, err)
	}
	status, err := s.c.Select(folder, false)
	if err != nil {
		return nil, err
	}
	return s.fingerprintSet(status.Messages)
}

// Peek is the read-only Prepare used by dry runs: no CREATE, a read-only
// SELECT, and a folder the destination does not have yet counts as empty.
func (s *Session) Peek(folder string) (map[migrate.Fingerprint]struct{}, error) {
	status, err := s.c.Select(folder, true)
	if err != nil {
		s.log.Debugf("dry run: select %q: %v", folder, err)
		return make(map[migrate.Fingerprint]struct{}), nil
	}
	return s.fingerprintSet(status.Messages)
}

func (s *Session) fingerprintSet(count uint32) (map[migrate.Fingerprint]struct{}, error) {
	existing := make(map[migrate.Fingerprint]struct{})
	if count == 0 {
		return existing, nil
	}
	infos, err := s.Summaries(1, count)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		existing[info.Fingerprint()] = struct{}{}
	}
	return existing, nil
}

// Append stores a message in the folder, keeping its flags and internal date.
func (s *Session) Append(folder string, info migrate.MessageInfo, body []byte) error {
	date := info.Date
	if date.IsZero() {
		date = time.Now()
	}
	return s.c.Append(folder, storableFlags(info.Flags), date, bytes.NewBuffer(normalize(body)))
}

// storableFlags drops \Recent, which servers refuse on APPEND.
func storableFlags(flags []string) []string {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		if f == imap.RecentFlag {
			continue
		}
		out = append(out, f)
	}
	return out
}

// normalize runs the message through go-message so mail with repairable
// header damage is rewritten on the way out. Anything that does not parse,
// including unknown charsets, is passed through verbatim rather than lost.
func normalize(body []byte) []byte {
	entity, err := message.Read(bytes.NewReader(body))
	if err != nil && !message.IsUnknownCharset(err) {
		return body
	}
	if entity == nil {
		return body
	}
	var buf bytes.Buffer
	if err := entity.WriteTo(&buf); err != nil {
		return body
	}
	return buf.Bytes()
}
