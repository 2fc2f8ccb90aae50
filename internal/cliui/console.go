// Package cliui is the terminal adapter for photoframectl: confirmation
// prompts, a sort-mode picker, and a progress spinner for long-running
// operator commands (force-resync, force-evict). Grounded on the teacher's
// internal/adapter/ui/console.go, trimmed to the subset an operator tool
// over this engine actually needs.
package cliui

import (
	"errors"
	"fmt"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"photoframe-sync/internal/domain"
)

// ConsoleUI handles interactive terminal I/O for the operator CLI.
// nonInteractive skips confirmation prompts (assume yes) for scripting.
type ConsoleUI struct {
	nonInteractive bool
}

func New(nonInteractive bool) *ConsoleUI {
	return &ConsoleUI{nonInteractive: nonInteractive}
}

// Confirm asks a yes/no question, defaulting to "no". Always true in
// non-interactive mode so scripted invocations never block on stdin.
func (u *ConsoleUI) Confirm(label string) bool {
	if u.nonInteractive {
		return true
	}
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}
	// promptui.Prompt's IsConfirm mode returns ErrAbort for "n" and
	// anything but "y"/"Y" — both mean decline, so any error declines.
	_, err := prompt.Run()
	return err == nil
}

// SelectSortMode lets the operator pick which rotation policy to preview.
func (u *ConsoleUI) SelectSortMode() (domain.SortMode, error) {
	modes := []string{"sequential", "random", "newest", "oldest"}
	prompt := promptui.Select{
		Label: "Sort mode to preview",
		Items: modes,
	}
	_, choice, err := prompt.Run()
	if err != nil {
		return "", err
	}
	mode, _ := domain.ParseSortMode(choice)
	return mode, nil
}

// SelectAction presents a menu of named actions and returns the chosen
// index, or -1 if the operator cancelled.
func (u *ConsoleUI) SelectAction(label string, actions []string) (int, error) {
	prompt := promptui.Select{
		Label: label,
		Items: actions,
	}
	i, _, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return -1, nil
		}
		return -1, err
	}
	return i, nil
}

// Spinner reports indeterminate progress for a long-running command (a
// forced resync or eviction pass) whose total work isn't known up front.
// Start it, run the operation, then call Done.
type Spinner struct {
	progress *mpb.Progress
	bar      *mpb.Bar
	started  time.Time
}

func (u *ConsoleUI) Spinner(label string) *Spinner {
	if u.nonInteractive {
		fmt.Printf("%s...\n", label)
		return &Spinner{started: time.Now()}
	}

	p := mpb.New(mpb.WithWidth(48))
	bar := p.AddBar(100,
		mpb.PrependDecorators(decor.Name(label, decor.WC{W: len(label) + 1})),
		mpb.AppendDecorators(decor.Elapsed(decor.ET_STYLE_GO)),
	)
	// No granular progress source exists for a one-shot sync/evict pass,
	// so the bar advances to "working" immediately and snaps to complete
	// in Done — it communicates liveness, not fractional completion.
	bar.SetCurrent(10)
	return &Spinner{progress: p, bar: bar, started: time.Now()}
}

// Done completes the spinner and prints the elapsed time.
func (s *Spinner) Done(result string) {
	if s.bar != nil {
		s.bar.SetCurrent(100)
		s.progress.Wait()
	}
	fmt.Printf("%s (%.1fs)\n", result, time.Since(s.started).Seconds())
}
