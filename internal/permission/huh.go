package permission

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
)

// TerminalPrompter asks on the controlling terminal with a huh confirm
// form. It is used by CLI commands running outside the TUI.
type TerminalPrompter struct{}

// Ask shows a yes/no confirmation.
func (TerminalPrompter) Ask(ctx context.Context, question string) (bool, error) {
	var allowed bool
	confirm := huh.NewConfirm().
		Title(question).
		Affirmative("Allow").
		Negative("Block").
		Value(&allowed)
	err := huh.NewForm(huh.NewGroup(confirm)).
		WithShowHelp(false).
		RunWithContext(ctx)
	if err != nil {
		return false, fmt.Errorf("running prompt: %w", err)
	}
	return allowed, nil
}
