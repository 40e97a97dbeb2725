package tui

import (
	gmailv1 "google.golang.org/api/gmail/v1"

	"sweepbox/internal/model"
)

// Async message types for Bubble Tea commands.

type authResultMsg struct {
	service *gmailv1.Service
	err     error
}

type authURLMsg string

type scanProgressMsg model.ScanProgress

type scanDoneMsg struct {
	err error
}

// resultsMsg carries the reconciled top-K after a scan.
type resultsMsg struct {
	entries []model.RankedEntry
}

type actionResultMsg struct {
	kind    string // "delete" or "block"
	outcome model.ActionOutcome
	err     error
}

type statusMsg string
