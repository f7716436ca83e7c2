// Package export writes migrated messages to local storage instead of a
// destination server: one maildir per source folder, optionally mirrored to
// a remote host over SFTP once the account is done.
package export

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-maildir"
	"github.com/emersion/go-message"
	"go.uber.org/zap"

	"github.com/mailferry/mailferry/internal/config"
	"github.com/mailferry/mailferry/internal/migrate"
)

// Maildir satisfies the engine's Target interface with a local maildir tree.
// Nothing touches the disk until Prepare or Append; a dry run over an export
// account leaves the filesystem exactly as it found it.
type Maildir struct {
	root      string
	upload    *config.Upload
	log       *zap.SugaredLogger
	delivered int
}

var _ migrate.Target = (*Maildir)(nil)

func NewMaildir(exp config.Export, log *zap.SugaredLogger) (*Maildir, error) {
	return &Maildir{root: exp.Dir, upload: exp.Upload, log: log}, nil
}

var unsafePathChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)

// folderPath maps an IMAP folder name onto a filesystem-safe directory.
func (m *Maildir) folderPath(folder string) string {
	name := unsafePathChars.ReplaceAllString(folder, "_")
	name = strings.ReplaceAll(name, " ", "_")
	if len(name) > 100 {
		name = name[:100]
	}
	return filepath.Join(m.root, name)
}

// Prepare initializes the folder's maildir and fingerprints the mail it
// already holds. Stored messages are identified by Message-ID alone: size
// and date are not reliably recoverable from a delivered file, so ID-less
// messages are exported again on a rerun.
func (m *Maildir) Prepare(folder string) (map[migrate.Fingerprint]struct{}, error) {
	dir := maildir.Dir(m.folderPath(folder))
	if _, err := os.Stat(filepath.Join(string(dir), "cur")); os.IsNotExist(err) {
		if err := os.MkdirAll(string(dir), 0755); err != nil {
			return nil, err
		}
		if err := dir.Init(); err != nil {
			return nil, err
		}
	}
	// Sweep new/ into cur/ so deliveries from an interrupted run are part
	// of the duplicate scan.
	if _, err := dir.Unseen(); err != nil {
		return nil, err
	}
	return m.scan(dir)
}

// Peek is the dry-run variant of Prepare: a missing maildir counts as empty
// and nothing is created or moved.
func (m *Maildir) Peek(folder string) (map[migrate.Fingerprint]struct{}, error) {
	dir := maildir.Dir(m.folderPath(folder))
	if _, err := os.Stat(filepath.Join(string(dir), "cur")); os.IsNotExist(err) {
		return make(map[migrate.Fingerprint]struct{}), nil
	}
	return m.scan(dir)
}

func (m *Maildir) scan(dir maildir.Dir) (map[migrate.Fingerprint]struct{}, error) {
	existing := make(map[migrate.Fingerprint]struct{})
	msgs, err := dir.Messages()
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		id, err := storedMessageID(msg)
		if err != nil {
			m.log.Debugf("unreadable stored message %s: %v", msg.Key(), err)
			continue
		}
		if fp, ok := migrate.MessageIDFingerprint(id); ok {
			existing[fp] = struct{}{}
		}
	}
	return existing, nil
}

func storedMessageID(msg *maildir.Message) (string, error) {
	r, err := msg.Open()
	if err != nil {
		return "", err
	}
	defer r.Close()

	entity, err := message.Read(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return "", err
	}
	if entity == nil {
		return "", nil
	}
	return entity.Header.Get("Message-Id"), nil
}

// Append delivers one message into the folder's maildir, then stamps it
// with the source's flags and internal date.
func (m *Maildir) Append(folder string, info migrate.MessageInfo, body []byte) error {
	dir := maildir.Dir(m.folderPath(folder))
	delivery, err := maildir.NewDelivery(string(dir))
	if err != nil {
		return err
	}
	if _, err := io.Copy(delivery, bytes.NewReader(body)); err != nil {
		delivery.Abort()
		return err
	}
	if err := delivery.Close(); err != nil {
		return err
	}
	m.delivered++
	return m.applyMetadata(dir, info)
}

// applyMetadata moves the fresh delivery out of new/ and carries over the
// date and flags. Chtimes runs before SetFlags: the flag rename leaves the
// mtime alone, while the old path stops existing afterwards.
func (m *Maildir) applyMetadata(dir maildir.Dir, info migrate.MessageInfo) error {
	msgs, err := dir.Unseen()
	if err != nil {
		return err
	}
	flags := maildirFlags(info.Flags)
	for _, msg := range msgs {
		if !info.Date.IsZero() {
			if err := os.Chtimes(msg.Filename(), info.Date, info.Date); err != nil {
				return err
			}
		}
		if len(flags) > 0 {
			if err := msg.SetFlags(flags); err != nil {
				return err
			}
		}
	}
	return nil
}

// maildirFlags maps the IMAP system flags onto their maildir letters.
// \Recent and keyword flags have no maildir representation and are dropped.
func maildirFlags(flags []string) []maildir.Flag {
	var out []maildir.Flag
	for _, f := range flags {
		switch f {
		case imap.SeenFlag:
			out = append(out, maildir.FlagSeen)
		case imap.AnsweredFlag:
			out = append(out, maildir.FlagReplied)
		case imap.FlaggedFlag:
			out = append(out, maildir.FlagFlagged)
		case imap.DraftFlag:
			out = append(out, maildir.FlagDraft)
		case imap.DeletedFlag:
			out = append(out, maildir.FlagTrashed)
		}
	}
	return out
}

// Close runs the optional SFTP hand-off once the account's export is done.
// A run that delivered nothing, dry or not, has nothing to upload.
func (m *Maildir) Close() error {
	if m.upload == nil {
		return nil
	}
	if m.delivered == 0 {
		m.log.Debugf("nothing delivered, skipping upload to %s", m.upload.Host)
		return nil
	}
	return Upload(*m.upload, m.root, m.log)
}
