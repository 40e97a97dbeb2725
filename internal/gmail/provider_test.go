package gmail

import (
	"context"
	"errors"
	"testing"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited 429", &googleapi.Error{Code: 429}, true},
		{"server error 500", &googleapi.Error{Code: 500}, true},
		{"bad gateway 502", &googleapi.Error{Code: 502}, true},
		{"quota 403", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}}, true},
		{"user quota 403", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}}, true},
		{"real permission 403", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "forbidden"}}}, false},
		{"not found 404", &googleapi.Error{Code: 404}, false},
		{"bad request 400", &googleapi.Error{Code: 400}, false},
		{"network failure", errors.New("connection reset"), true},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := retryable(tc.err); got != tc.want {
				t.Fatalf("retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestBackoffDelay_BoundedAndGrowing(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		limit := time.Duration(1<<uint(attempt)) * time.Second
		if limit > maxBackoff {
			limit = maxBackoff
		}
		for i := 0; i < 20; i++ {
			d := backoffDelay(attempt)
			if d < 0 || d >= limit {
				t.Fatalf("attempt %d: delay %v outside [0, %v)", attempt, d, limit)
			}
		}
	}
}

func TestFromQuery(t *testing.T) {
	got := fromQuery("Daily Deals <deals@shop.example>")
	want := "from:(Daily Deals <deals@shop.example>) is:unread in:inbox"
	if got != want {
		t.Fatalf("fromQuery = %q, want %q", got, want)
	}
}

func TestFromHeader(t *testing.T) {
	msg := &gmailv1.Message{
		Payload: &gmailv1.MessagePart{
			Headers: []*gmailv1.MessagePartHeader{
				{Name: "Subject", Value: "hello"},
				{Name: "FROM", Value: "Twitter <notify@twitter.com>"},
			},
		},
	}
	if got := fromHeader(msg); got != "Twitter <notify@twitter.com>" {
		t.Fatalf("fromHeader = %q", got)
	}
	if got := fromHeader(&gmailv1.Message{}); got != "" {
		t.Fatalf("fromHeader(no payload) = %q, want empty", got)
	}
	if got := fromHeader(nil); got != "" {
		t.Fatalf("fromHeader(nil) = %q, want empty", got)
	}
}

func TestUnreadQuery_MatchesScanCorpus(t *testing.T) {
	// The scan must walk exactly the unread inbox, excluding trash.
	if unreadQuery != "label:unread label:inbox -label:trash" {
		t.Fatalf("unreadQuery = %q", unreadQuery)
	}
}
