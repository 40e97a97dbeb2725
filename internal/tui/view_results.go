package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"

	"sweepbox/internal/model"
	"sweepbox/internal/util"
)

// rankedItem wraps a RankedEntry to customize list display.
type rankedItem struct {
	model.RankedEntry
}

func (r rankedItem) FilterValue() string { return r.Sender }

func (r rankedItem) Title() string {
	mark := "~" // estimated only
	if r.Verified {
		mark = "✓"
	}
	return fmt.Sprintf("#%d  %s (%d %s)", r.Rank, util.DisplayName(r.Sender), r.Count, mark)
}

func (r rankedItem) Description() string { return r.Sender }

var footerStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("241")).
	PaddingTop(1)

var warnStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("208"))

func resultsFooter() string {
	return footerStyle.Render("d: delete past  b: block future  s: rescan  R: reset  v: revoke access  q: quit  ✓=verified ~=estimated")
}

func homeFooter() string {
	return footerStyle.Render("s: scan unread inbox  R: reset  v: revoke access  q: quit")
}

func rankedToItems(entries []model.RankedEntry) []list.Item {
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = rankedItem{e}
	}
	return items
}
