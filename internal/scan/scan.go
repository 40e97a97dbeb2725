// Package scan drives one pass over the unread inbox: page through message
// IDs up to a hard cap, then resolve each ID's From header in fixed-size
// batches, feeding every resolved sender into the session's sketch.
package scan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"sweepbox/internal/audit"
	"sweepbox/internal/config"
	"sweepbox/internal/model"
	"sweepbox/internal/session"
)

// Mailbox is the provider surface the orchestrator consumes. ListUnread
// returns one page of unread-inbox message IDs plus the continuation cursor
// (empty when exhausted). ResolveSenders fetches the From header for each ID
// and calls deliver for every success; per-item failures are skipped and only
// a whole-batch failure is returned as an error. Deliver may be called from
// concurrent goroutines.
type Mailbox interface {
	Profile(ctx context.Context) (string, error)
	ListUnread(ctx context.Context, cursor string, pageSize int64) (ids []string, next string, err error)
	ResolveSenders(ctx context.Context, ids []string, deliver func(id, sender string)) error
}

// AuditSink records usage events best-effort; implementations must never
// return failure to the caller.
type AuditSink interface {
	Record(ctx context.Context, userHash, action string, count int)
}

// Orchestrator runs scans against a ScanSession.
type Orchestrator struct {
	mailbox Mailbox
	cfg     config.ScanConfig
	logger  *log.Logger
	sink    AuditSink
}

func NewOrchestrator(mailbox Mailbox, cfg config.ScanConfig, logger *log.Logger, sink AuditSink) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{mailbox: mailbox, cfg: cfg, logger: logger, sink: sink}
}

// Run performs one full scan. It claims the session (failing if another scan
// holds it), lists unread IDs up to the cap, resolves senders batch by batch,
// and stamps the session on completion. Listing-phase and whole-batch
// failures abort the scan; the session keeps whatever was ingested so far but
// is not stamped. Cancellation is honored between pages and between batches.
func (o *Orchestrator) Run(ctx context.Context, sess *session.ScanSession, progress func(model.ScanProgress)) error {
	if err := sess.BeginScan(); err != nil {
		return err
	}
	completed := false
	defer func() {
		sess.EndScan(completed, time.Now())
	}()

	email, err := o.mailbox.Profile(ctx)
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}
	sess.SetUserHash(UserHash(email))
	if o.sink != nil {
		o.sink.Record(ctx, sess.UserHash(), audit.ActionScan, 1)
	}

	ids, err := o.listIDs(ctx, sess)
	if err != nil {
		return err
	}
	o.logger.Info("listing complete", "ids", len(ids))

	total := len(ids)
	done := 0
	for start := 0; start < total; start += o.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + o.cfg.BatchSize
		if end > total {
			end = total
		}
		batch := ids[start:end]
		err := o.mailbox.ResolveSenders(ctx, batch, func(id, sender string) {
			if sender == "" {
				return
			}
			sess.Observe(sender)
		})
		if err != nil {
			return fmt.Errorf("resolve batch at %d: %w", start, err)
		}
		done += len(batch)
		if progress != nil {
			progress(model.ScanProgress{Done: done, Total: total})
		}
	}

	completed = true
	return nil
}

// listIDs pages through the unread listing until the cursor runs out or the
// cap is reached. Any page failure is fatal to the scan.
func (o *Orchestrator) listIDs(ctx context.Context, sess *session.ScanSession) ([]string, error) {
	var ids []string
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageIDs, next, err := o.mailbox.ListUnread(ctx, cursor, o.cfg.PageSize)
		if err != nil {
			return nil, fmt.Errorf("list unread page: %w", err)
		}
		ids = append(ids, pageIDs...)
		sess.SetCursor(next)
		if next == "" || len(ids) >= o.cfg.MessageCap {
			break
		}
		cursor = next
	}
	if len(ids) > o.cfg.MessageCap {
		ids = ids[:o.cfg.MessageCap]
	}
	return ids, nil
}

// UserHash is the privacy-preserving account identifier: hex SHA-256 of the
// account email. Audit rows carry this instead of the address itself.
func UserHash(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:])
}
