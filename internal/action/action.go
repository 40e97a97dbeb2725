// Package action executes the per-sender mailbox mutations: trashing a
// sender's existing unread messages and, behind an explicit confirmation
// step, creating a filter that auto-trashes their future mail. Each sender's
// action is independent; one sender's failure never touches another's state.
package action

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"sweepbox/internal/audit"
	"sweepbox/internal/model"
	"sweepbox/internal/session"
)

// Mailbox is the provider surface the pipeline mutates through.
type Mailbox interface {
	ListFrom(ctx context.Context, sender string) ([]string, error)
	Trash(ctx context.Context, id string) error
	CreateFilter(ctx context.Context, sender string) error
}

// AuditSink records usage events best-effort.
type AuditSink interface {
	Record(ctx context.Context, userHash, action string, count int)
}

// ErrNotProposed is returned by ConfirmBlock without a live proposal for the
// sender; blocking always takes two steps.
var ErrNotProposed = errors.New("block was not proposed for this sender")

// Pipeline runs delete and block actions against one session. Actions for
// the same sender are serialized by the pending-proposal bookkeeping; the
// caller dispatches one action per sender at a time.
type Pipeline struct {
	mailbox Mailbox
	logger  *log.Logger
	sink    AuditSink

	mu      sync.Mutex
	pending map[string]struct{}
}

func NewPipeline(mailbox Mailbox, logger *log.Logger, sink AuditSink) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		mailbox: mailbox,
		logger:  logger,
		sink:    sink,
		pending: make(map[string]struct{}),
	}
}

// DeletePast trashes every currently-matching unread inbox message from
// sender, one at a time. The listing call failing before any mutation yields
// Failed. Zero matches yields NoMatches and touches nothing. Item failures
// after that are logged and skipped; prior successes stand, and
// ItemsAffected counts the messages actually trashed. A non-empty result
// removes the sender from the session leaderboard and records an audit row.
func (p *Pipeline) DeletePast(ctx context.Context, sess *session.ScanSession, sender string) model.ActionOutcome {
	ids, err := p.mailbox.ListFrom(ctx, sender)
	if err != nil {
		p.logger.Error("list for delete failed", "sender", sender, "err", err)
		return model.ActionOutcome{Sender: sender, Status: model.StatusFailed}
	}
	if len(ids) == 0 {
		return model.ActionOutcome{Sender: sender, Status: model.StatusNoMatches}
	}

	trashed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := p.mailbox.Trash(ctx, id); err != nil {
			p.logger.Warn("trash failed, continuing", "sender", sender, "id", id, "err", err)
			continue
		}
		trashed++
	}

	if trashed > 0 {
		if sess != nil {
			sess.Remove(sender)
			if p.sink != nil {
				p.sink.Record(ctx, sess.UserHash(), audit.ActionDelete, trashed)
			}
		}
	}
	return model.ActionOutcome{Sender: sender, ItemsAffected: trashed, Status: model.StatusCompleted}
}

// ProposeBlock registers intent to block a sender. Nothing is mutated until
// ConfirmBlock; CancelBlock withdraws the proposal.
func (p *Pipeline) ProposeBlock(sender string) {
	p.mu.Lock()
	p.pending[sender] = struct{}{}
	p.mu.Unlock()
}

// CancelBlock withdraws a pending proposal, if any.
func (p *Pipeline) CancelBlock(sender string) {
	p.mu.Lock()
	delete(p.pending, sender)
	p.mu.Unlock()
}

// ConfirmBlock creates the auto-trash filter for a previously proposed
// sender. The proposal is consumed either way. No check is made for an
// existing identical rule; the provider may hold duplicates.
func (p *Pipeline) ConfirmBlock(ctx context.Context, sess *session.ScanSession, sender string) (model.ActionOutcome, error) {
	p.mu.Lock()
	_, proposed := p.pending[sender]
	delete(p.pending, sender)
	p.mu.Unlock()
	if !proposed {
		return model.ActionOutcome{Sender: sender, Status: model.StatusFailed},
			fmt.Errorf("%w: %s", ErrNotProposed, sender)
	}

	if err := p.mailbox.CreateFilter(ctx, sender); err != nil {
		p.logger.Error("create filter failed", "sender", sender, "err", err)
		return model.ActionOutcome{Sender: sender, Status: model.StatusFailed}, err
	}

	if sess != nil {
		sess.Remove(sender)
		if p.sink != nil {
			p.sink.Record(ctx, sess.UserHash(), audit.ActionBlock, 1)
		}
	}
	return model.ActionOutcome{Sender: sender, ItemsAffected: 1, Status: model.StatusCompleted}, nil
}
