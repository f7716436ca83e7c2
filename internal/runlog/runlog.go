// Package runlog writes the per-run outcome log: one timestamped plain-text
// file per migration run, one line per message, folder or account event.
package runlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/xid"
)

// Outcome of processing one source message.
type Outcome string

const (
	Copied  Outcome = "copied"
	Skipped Outcome = "skipped-duplicate"
	Failed  Outcome = "failed"
)

// Recorder accumulates outcomes into log_<YYYYMMDD>_<HHMMSS>.txt. Lines are
// buffered; durability is guaranteed at Close, not before.
type Recorder struct {
	path  string
	runID string
	f     *os.File
	w     *bufio.Writer
	now   func() time.Time
}

// Create opens a fresh run log in dir, named after the current time. The
// filename has second granularity, so when a log for this second already
// exists a numeric suffix keeps the runs apart.
func Create(dir string) (*Recorder, error) {
	stamp := time.Now().Format("20060102_150405")
	path, f, err := createExclusive(dir, stamp)
	if err != nil {
		return nil, fmt.Errorf("create run log: %w", err)
	}

	r := &Recorder{
		path:  path,
		runID: xid.New().String(),
		f:     f,
		w:     bufio.NewWriter(f),
		now:   time.Now,
	}
	r.line("run %s started", r.runID)
	return r, nil
}

func createExclusive(dir, stamp string) (string, *os.File, error) {
	name := fmt.Sprintf("log_%s.txt", stamp)
	for i := 1; ; i++ {
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
		if err == nil {
			return path, f, nil
		}
		if !os.IsExist(err) || i > 100 {
			return "", nil, err
		}
		name = fmt.Sprintf("log_%s_%d.txt", stamp, i)
	}
}

// Path returns the log file location.
func (r *Recorder) Path() string { return r.path }

// ID returns the opaque identifier of this run.
func (r *Recorder) ID() string { return r.runID }

func (r *Recorder) line(format string, args ...interface{}) {
	fmt.Fprintf(r.w, "%s ", r.now().UTC().Format(time.RFC3339))
	fmt.Fprintf(r.w, format, args...)
	r.w.WriteByte('\n')
}

// Message records the outcome of one source message, identified by its
// duplicate-detection fingerprint.
func (r *Recorder) Message(account, folder, fingerprint string, outcome Outcome, detail string) {
	if detail == "" {
		r.line("account=%s folder=%q msg=%q outcome=%s", account, folder, fingerprint, outcome)
		return
	}
	r.line("account=%s folder=%q msg=%q outcome=%s detail=%q", account, folder, fingerprint, outcome, detail)
}

// Account records an account-level event: started, finished, abandoned.
func (r *Recorder) Account(account, event, detail string) {
	if detail == "" {
		r.line("account=%s %s", account, event)
		return
	}
	r.line("account=%s %s detail=%q", account, event, detail)
}

// Folder records a folder that could not be processed.
func (r *Recorder) Folder(account, folder, detail string) {
	r.line("account=%s folder=%q failed detail=%q", account, folder, detail)
}

// Summary appends a free-form trailer line, used for the final counters.
func (r *Recorder) Summary(format string, args ...interface{}) {
	r.line(format, args...)
}

// Close flushes everything to disk.
func (r *Recorder) Close() error {
	r.line("run %s finished", r.runID)
	if err := r.w.Flush(); err != nil {
		r.f.Close()
		return fmt.Errorf("flush run log: %w", err)
	}
	return r.f.Close()
}
