// Package imapx wraps the go-imap client into the session shape the
// migration engine works with: dial with the configured security mode,
// authenticate with a password or an OAuth token, then read or write one
// folder at a time.
package imapx

import (
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"go.uber.org/zap"

	"github.com/mailferry/mailferry/internal/config"
	"github.com/mailferry/mailferry/internal/migrate"
)

// Session is a logged-in IMAP connection. It serves as the engine's Source
// when dialed for the src endpoint and as its Target for the dst endpoint.
type Session struct {
	c   *client.Client
	log *zap.SugaredLogger
}

var (
	_ migrate.Source = (*Session)(nil)
	_ migrate.Target = (*Session)(nil)
)

// Dial connects and authenticates according to the endpoint configuration.
func Dial(cfg config.Server, log *zap.SugaredLogger) (*Session, error) {
	addr := cfg.Addr()
	tlsConfig := &tls.Config{
		ServerName:         cfg.Server,
		InsecureSkipVerify: cfg.InsecureTLS,
	}

	var c *client.Client
	var err error
	switch cfg.Security {
	case config.SecurityTLS:
		c, err = client.DialTLS(addr, tlsConfig)
	case config.SecurityStartTLS:
		c, err = client.Dial(addr)
		if err == nil {
			if err = c.StartTLS(tlsConfig); err != nil {
				c.Logout()
			}
		}
	default:
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	c.Timeout = 5 * time.Minute

	if err := login(c, cfg); err != nil {
		c.Logout()
		return nil, fmt.Errorf("authenticate %s on %s: %w", cfg.User, addr, err)
	}
	log.Debugf("logged in as %s on %s", cfg.User, addr)
	return &Session{c: c, log: log}, nil
}

func login(c *client.Client, cfg config.Server) error {
	if cfg.Token != "" {
		return c.Authenticate(sasl.NewXoauth2Client(cfg.User, cfg.Token))
	}
	return c.Login(cfg.User, cfg.Password)
}

// Close logs out and releases the connection.
func (s *Session) Close() error {
	return s.c.Logout()
}

// Folders lists every folder the server reports. Order is whatever the
// server sends and carries no meaning.
func (s *Session) Folders() ([]string, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.c.List("", "*", mailboxes)
	}()

	var names []string
	for m := range mailboxes {
		names = append(names, m.Name)
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return names, nil
}

// Open selects a folder read-only and reports its message count.
func (s *Session) Open(folder string) (uint32, error) {
	status, err := s.c.Select(folder, true)
	if err != nil {
		return 0, err
	}
	return status.Messages, nil
}

// Summaries fetches envelope, flags, internal date and size for a sequence
// range of the selected folder.
func (s *Session) Summaries(from, to uint32) ([]migrate.MessageInfo, error) {
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, to)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.c.Fetch(seqset, []imap.FetchItem{
			imap.FetchEnvelope,
			imap.FetchFlags,
			imap.FetchInternalDate,
			imap.FetchRFC822Size,
		}, messages)
	}()

	var infos []migrate.MessageInfo
	for msg := range messages {
		infos = append(infos, summarize(msg))
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return infos, nil
}

func summarize(msg *imap.Message) migrate.MessageInfo {
	info := migrate.MessageInfo{
		SeqNum: msg.SeqNum,
		Date:   msg.InternalDate,
		Size:   msg.Size,
		Flags:  msg.Flags,
	}
	if msg.Envelope != nil {
		info.MessageID = msg.Envelope.MessageId
		info.Subject = msg.Envelope.Subject
		if info.Date.IsZero() {
			info.Date = msg.Envelope.Date
		}
	}
	return info
}

// Body fetches the raw RFC822 content of one message. The peek section
// leaves the source \Seen flag untouched.
func (s *Session) Body(seq uint32) ([]byte, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(seq)
	section := &imap.BodySectionName{Peek: true}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.c.Fetch(seqset, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var body []byte
	var readErr error
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			continue
		}
		body, readErr = io.ReadAll(r)
	}
	if err := <-done; err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}
	if body == nil {
		return nil, fmt.Errorf("message %d has no body section", seq)
	}
	return body, nil
}
