// Package gmail wraps the Gmail API behind the small surfaces the scan,
// rank, and action packages consume, adding quota-aware rate limiting and
// bounded retry with backoff.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"sweepbox/internal/config"
)

const (
	userID = "me"

	// unreadQuery selects the corpus a scan walks.
	unreadQuery = "label:unread label:inbox -label:trash"

	maxAttempts = 5
	maxBackoff  = 64 * time.Second
)

// Gmail per-user quota units per call type.
const (
	costProfile = 1
	costList    = 5
	costGet     = 5
	costTrash   = 5
	costFilter  = 5
)

// Provider implements the mailbox collaborator over a Gmail service.
type Provider struct {
	svc         *gmailv1.Service
	limiter     *rate.Limiter
	logger      *log.Logger
	concurrency int
}

func NewProvider(svc *gmailv1.Service, cfg config.ScanConfig, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.Default()
	}
	qps := cfg.RateLimitQPS
	if qps <= 0 {
		qps = 50
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	return &Provider{
		svc:         svc,
		limiter:     rate.NewLimiter(rate.Limit(qps), qps),
		logger:      logger,
		concurrency: concurrency,
	}
}

// Profile returns the authenticated account's email address.
func (p *Provider) Profile(ctx context.Context) (string, error) {
	var email string
	err := p.call(ctx, "get profile", costProfile, func() error {
		prof, err := p.svc.Users.GetProfile(userID).Context(ctx).Do()
		if err != nil {
			return err
		}
		email = prof.EmailAddress
		return nil
	})
	return email, err
}

// ListUnread returns one page of unread-inbox message IDs and the
// continuation cursor, empty when the listing is exhausted.
func (p *Provider) ListUnread(ctx context.Context, cursor string, pageSize int64) ([]string, string, error) {
	return p.listPage(ctx, unreadQuery, cursor, pageSize)
}

func (p *Provider) listPage(ctx context.Context, query, cursor string, pageSize int64) ([]string, string, error) {
	var ids []string
	var next string
	err := p.call(ctx, "list messages", costList, func() error {
		call := p.svc.Users.Messages.List(userID).
			Q(query).
			MaxResults(pageSize).
			Context(ctx)
		if cursor != "" {
			call = call.PageToken(cursor)
		}
		resp, err := call.Do()
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		next = resp.NextPageToken
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return ids, next, nil
}

// ResolveSenders fetches only the From header for every ID, with bounded
// concurrency, and calls deliver for each success. A single message failing
// (after retries) is skipped so the rest of the batch lands; only
// cancellation fails the batch as a whole. Deliver runs from multiple
// goroutines.
func (p *Provider) ResolveSenders(ctx context.Context, ids []string, deliver func(id, sender string)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			var from string
			err := p.call(ctx, "get metadata", costGet, func() error {
				msg, err := p.svc.Users.Messages.Get(userID, id).
					Format("metadata").
					MetadataHeaders("From").
					Context(ctx).
					Do()
				if err != nil {
					return err
				}
				from = fromHeader(msg)
				return nil
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// One bad message must not stall the scan.
				p.logger.Warn("metadata fetch failed, skipping message", "id", id, "err", err)
				return nil
			}
			deliver(id, from)
			return nil
		})
	}
	return g.Wait()
}

func fromHeader(msg *gmailv1.Message) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, "From") {
			return h.Value
		}
	}
	return ""
}

// fromQuery matches a single sender's unread inbox mail, mirroring the
// queries the ranked view verifies and acts on.
func fromQuery(sender string) string {
	return fmt.Sprintf("from:(%s) is:unread in:inbox", sender)
}

// CountFrom returns the exact number of unread inbox messages from sender.
func (p *Provider) CountFrom(ctx context.Context, sender string) (int, error) {
	ids, err := p.ListFrom(ctx, sender)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// ListFrom returns every unread inbox message ID from sender, paging until
// the listing is exhausted.
func (p *Provider) ListFrom(ctx context.Context, sender string) ([]string, error) {
	var all []string
	cursor := ""
	for {
		ids, next, err := p.listPage(ctx, fromQuery(sender), cursor, 500)
		if err != nil {
			return nil, err
		}
		all = append(all, ids...)
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}

// Trash moves one message to the trash.
func (p *Provider) Trash(ctx context.Context, id string) error {
	return p.call(ctx, "trash message", costTrash, func() error {
		_, err := p.svc.Users.Messages.Trash(userID, id).Context(ctx).Do()
		return err
	})
}

// CreateFilter installs a rule sending all future mail from sender straight
// to the trash. No dedup against existing rules is attempted.
func (p *Provider) CreateFilter(ctx context.Context, sender string) error {
	filter := &gmailv1.Filter{
		Criteria: &gmailv1.FilterCriteria{From: sender},
		Action: &gmailv1.FilterAction{
			AddLabelIds:    []string{"TRASH"},
			RemoveLabelIds: []string{"INBOX"},
		},
	}
	return p.call(ctx, "create filter", costFilter, func() error {
		_, err := p.svc.Users.Settings.Filters.Create(userID, filter).Context(ctx).Do()
		return err
	})
}

// call pays the quota cost, runs fn, and retries transient failures with
// exponential backoff and full jitter. Non-retryable errors surface
// immediately.
func (p *Provider) call(ctx context.Context, op string, cost int, fn func() error) error {
	if err := p.limiter.WaitN(ctx, cost); err != nil {
		return fmt.Errorf("%s: rate limit: %w", op, err)
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := backoffDelay(attempt)
			p.logger.Debug("retrying", "op", op, "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
		lastErr = err
	}
	return fmt.Errorf("%s: max retries exceeded: %w", op, lastErr)
}

// retryable reports whether an API error is worth another attempt: rate
// limiting (429, or 403 carrying a quota reason), server errors, and
// transport-level failures. Cancellation and plain client errors are not.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		// Not an API response at all; assume a transient network failure.
		return true
	}
	switch {
	case gerr.Code == 429:
		return true
	case gerr.Code == 403:
		return isQuotaError(gerr)
	case gerr.Code >= 500:
		return true
	default:
		return false
	}
}

// isQuotaError distinguishes Gmail's quota-flavored 403s from real
// permission errors.
func isQuotaError(gerr *googleapi.Error) bool {
	for _, e := range gerr.Errors {
		switch e.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return strings.Contains(gerr.Message, "Quota exceeded")
}

// backoffDelay is exponential with full jitter: attempt n waits a random
// duration in [0, min(2^n, maxBackoff)) seconds.
func backoffDelay(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > maxBackoff {
		base = maxBackoff
	}
	return time.Duration(rand.Float64() * float64(base))
}
