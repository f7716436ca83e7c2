// Package migrate holds the per-account synchronization loop: enumerate
// folders on the source, copy over every message the destination does not
// already hold, and record each outcome.
package migrate

// Source is the read side of a migration, a connected IMAP session. Open
// must be called before Summaries or Body; sequence numbers are relative to
// the opened folder.
type Source interface {
	Folders() ([]string, error)
	Open(folder string) (uint32, error)
	Summaries(from, to uint32) ([]MessageInfo, error)
	Body(seq uint32) ([]byte, error)
	Close() error
}

// Target is the write side: a second IMAP session, or a local maildir
// export. Prepare makes the folder exist and reports what it already holds;
// Peek reports the same without creating anything, treating a folder the
// destination does not have yet as empty. Dry runs only ever call Peek.
type Target interface {
	Prepare(folder string) (map[Fingerprint]struct{}, error)
	Peek(folder string) (map[Fingerprint]struct{}, error)
	Append(folder string, info MessageInfo, body []byte) error
	Close() error
}

// Stats are the counters for one run.
type Stats struct {
	Accounts       int
	FailedAccounts int
	Folders        int
	Messages       int
	Copied         int
	CopiedBytes    uint64
	Skipped        int
	Failed         int
}
