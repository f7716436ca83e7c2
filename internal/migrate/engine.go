package migrate

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/mailferry/mailferry/internal/config"
	"github.com/mailferry/mailferry/internal/runlog"
)

// Summaries are fetched in ranges of this many sequence numbers.
const fetchBatch = 100

// OpenSource and OpenTarget establish sessions; injected so the engine can
// be driven against fakes.
type (
	OpenSource func(config.Server) (Source, error)
	OpenTarget func(config.Account) (Target, error)
)

// Engine runs one migration pass: one account pair at a time, one folder at
// a time, one message at a time. All run state lives here, nothing global.
type Engine struct {
	log        *zap.SugaredLogger
	rec        *runlog.Recorder
	dryRun     bool
	openSource OpenSource
	openTarget OpenTarget
	stats      Stats
}

func NewEngine(log *zap.SugaredLogger, rec *runlog.Recorder, dryRun bool, src OpenSource, dst OpenTarget) *Engine {
	return &Engine{log: log, rec: rec, dryRun: dryRun, openSource: src, openTarget: dst}
}

// Run processes every account pair in order. A failing pair is logged and
// abandoned; it never stops or rolls back the others.
func (e *Engine) Run(accounts []config.Account) Stats {
	for _, acct := range accounts {
		e.stats.Accounts++
		user := acct.Src.User
		e.log.Infof("migrating %s", user)
		e.rec.Account(user, "started", "")

		if err := e.syncAccount(acct); err != nil {
			e.stats.FailedAccounts++
			e.log.Errorf("%s: %v", user, err)
			e.rec.Account(user, "abandoned", err.Error())
			continue
		}
		e.rec.Account(user, "finished", "")
	}
	e.summary()
	return e.stats
}

func (e *Engine) syncAccount(acct config.Account) error {
	src, err := e.openSource(acct.Src)
	if err != nil {
		return fmt.Errorf("source %s: %w", acct.Src.Addr(), err)
	}
	defer src.Close()

	dst, err := e.openTarget(acct)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	defer dst.Close()

	folders, err := src.Folders()
	if err != nil {
		return fmt.Errorf("list folders: %w", err)
	}
	e.log.Infof("%s: %d folders", acct.Src.User, len(folders))

	for _, folder := range folders {
		e.stats.Folders++
		if err := e.syncFolder(src, dst, acct.Src.User, folder); err != nil {
			e.log.Errorf("%s: folder %q: %v", acct.Src.User, folder, err)
			e.rec.Folder(acct.Src.User, folder, err.Error())
		}
	}
	return nil
}

func (e *Engine) syncFolder(src Source, dst Target, account, folder string) error {
	total, err := src.Open(folder)
	if err != nil {
		return fmt.Errorf("select: %w", err)
	}
	if total == 0 {
		e.log.Debugf("%s: folder %q is empty", account, folder)
		return nil
	}

	existing, err := e.prepare(dst, folder)
	if err != nil {
		return fmt.Errorf("prepare destination: %w", err)
	}
	e.log.Infof("%s: folder %q: %d messages, %d already at destination",
		account, folder, total, len(existing))

	for start := uint32(1); start <= total; start += fetchBatch {
		end := start + fetchBatch - 1
		if end > total {
			end = total
		}
		infos, err := src.Summaries(start, end)
		if err != nil {
			return fmt.Errorf("fetch %d:%d: %w", start, end, err)
		}
		for _, info := range infos {
			e.stats.Messages++
			e.transfer(src, dst, account, folder, info, existing)
		}
	}
	return nil
}

// prepare resolves the destination's existing fingerprints. A dry run must
// not write, so it uses the read-only Peek instead of Prepare.
func (e *Engine) prepare(dst Target, folder string) (map[Fingerprint]struct{}, error) {
	if e.dryRun {
		return dst.Peek(folder)
	}
	return dst.Prepare(folder)
}

// transfer decides the fate of one message. Failures are recorded and the
// caller moves on; nothing here aborts the folder.
func (e *Engine) transfer(src Source, dst Target, account, folder string, info MessageInfo, existing map[Fingerprint]struct{}) {
	fp := info.Fingerprint()
	if _, dup := existing[fp]; dup {
		e.stats.Skipped++
		e.rec.Message(account, folder, string(fp), runlog.Skipped, "")
		return
	}

	if e.dryRun {
		e.stats.Copied++
		existing[fp] = struct{}{}
		e.log.Infof("%s: would copy %q (%s)", account, info.Subject, fp)
		e.rec.Message(account, folder, string(fp), runlog.Copied, "dry-run")
		return
	}

	body, err := src.Body(info.SeqNum)
	if err != nil {
		e.stats.Failed++
		e.log.Warnf("%s: fetch message %d in %q: %v", account, info.SeqNum, folder, err)
		e.rec.Message(account, folder, string(fp), runlog.Failed, "fetch: "+err.Error())
		return
	}

	if err := appendWithRetry(dst, folder, info, body); err != nil {
		e.stats.Failed++
		e.log.Warnf("%s: append message %d to %q: %v", account, info.SeqNum, folder, err)
		e.rec.Message(account, folder, string(fp), runlog.Failed, "append: "+err.Error())
		return
	}

	existing[fp] = struct{}{}
	e.stats.Copied++
	e.stats.CopiedBytes += uint64(len(body))
	e.rec.Message(account, folder, string(fp), runlog.Copied, "")
}

// appendWithRetry gives a rejected append one immediate second chance.
func appendWithRetry(dst Target, folder string, info MessageInfo, body []byte) error {
	err := dst.Append(folder, info, body)
	if err == nil {
		return nil
	}
	if retryErr := dst.Append(folder, info, body); retryErr == nil {
		return nil
	}
	return err
}

func (e *Engine) summary() {
	s := e.stats
	e.log.Infof("accounts: %d processed, %d failed", s.Accounts, s.FailedAccounts)
	e.log.Infof("messages: %d seen, %d copied (%s), %d skipped, %d failed",
		s.Messages, s.Copied, humanize.Bytes(s.CopiedBytes), s.Skipped, s.Failed)
	e.rec.Summary("totals accounts=%d failed_accounts=%d folders=%d messages=%d copied=%d copied_bytes=%d skipped=%d failed=%d",
		s.Accounts, s.FailedAccounts, s.Folders, s.Messages, s.Copied, s.CopiedBytes, s.Skipped, s.Failed)
}
