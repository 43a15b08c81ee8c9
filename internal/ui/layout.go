package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/agent-notify/internal/theme"
)

// Rows taken by the fixed parts of the page.
const (
	headerRows = 1
	bannerRows = 1
	statusRows = 1

	// MinContentRows is the smallest content area handed to a view.
	MinContentRows = 3
)

// AppTitle is shown at the left of the header.
const AppTitle = "agentnotify"

// Layout splits the terminal into the rows of the notification page: a
// header with the unread count and connection state, an optional banner,
// the active view and a status bar of key hints.
type Layout struct {
	Width  int
	Height int

	// Banner reserves a row under the header.
	Banner bool
}

// NewLayout creates a Layout for the given terminal size, without banner.
func NewLayout(width, height int) Layout {
	return Layout{Width: width, Height: height}
}

// WithBanner returns a copy with the banner row reserved or released.
func (l Layout) WithBanner(on bool) Layout {
	l.Banner = on
	return l
}

// ContentWidth returns the width handed to views.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the rows left for the active view. It never drops
// below MinContentRows, so tiny terminals scroll instead of collapsing.
func (l Layout) ContentHeight() int {
	h := l.Height - headerRows - statusRows
	if l.Banner {
		h -= bannerRows
	}
	if h < MinContentRows {
		return MinContentRows
	}
	return h
}

// Title returns the header title for unread notifications.
func Title(unread int) string {
	if unread <= 0 {
		return AppTitle
	}
	return fmt.Sprintf("%s [%d unread]", AppTitle, unread)
}

// RenderHeader renders the title on the left and the connection state on
// the right. When both do not fit, the state is dropped.
func (l Layout) RenderHeader(unread int, state string) string {
	title := theme.HeaderStyle.Render(Title(unread))
	right := theme.HeaderStyle.Render(state)

	gap := l.Width - lipgloss.Width(title) - lipgloss.Width(right)
	if state == "" || gap < 0 {
		return theme.HeaderStyle.Width(l.Width).MaxWidth(l.Width).Render(Title(unread))
	}

	fill := lipgloss.NewStyle().
		Background(theme.HeaderStyle.GetBackground()).
		Render(strings.Repeat(" ", gap))
	return lipgloss.JoinHorizontal(lipgloss.Top, title, fill, right)
}

// RenderBanner renders the one-line banner, cut to the width.
func (l Layout) RenderBanner(text, level string) string {
	return theme.BannerStyle(level).
		Width(l.Width).
		MaxWidth(l.Width).
		MaxHeight(bannerRows).
		Render(firstLine(text))
}

// RenderStatusBar renders the key hints across the bottom row.
func (l Layout) RenderStatusBar(hints string) string {
	return theme.StatusBarStyle.
		Width(l.Width).
		MaxWidth(l.Width).
		MaxHeight(statusRows).
		Render(hints)
}

// Render stacks header, banner, content and status bar. The banner row is
// left out when the layout does not reserve it.
func (l Layout) Render(header, banner, content, statusBar string) string {
	rows := []string{header}
	if l.Banner {
		rows = append(rows, banner)
	}
	rows = append(rows, content, statusBar)
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
