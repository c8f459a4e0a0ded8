package qtcross

import (
	"fmt"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/term"
)

// showStageLog pages through the saved output of one stage.
func showStageLog(logDir string, s Stage) error {
	data, err := readStageLog(logDir, s)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no log found for stage %s in %s", s, logDir)
		}
		return fmt.Errorf("failed to read %s log: %w", s, err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	return runPager(s.Title()+" log", lines)
}

// runPager prints lines directly when stdout is not a terminal or the text
// fits on screen, and otherwise opens a scrollable view.
func runPager(title string, lines []string) error {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		printLines(lines)
		return nil
	}
	// two rows for the border
	if _, height, err := term.GetSize(fd); err == nil && len(lines) <= height-2 {
		printLines(lines)
		return nil
	}

	app := tview.NewApplication()

	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(false)
	textView.SetBorder(true).SetTitle(" " + title + " ")
	// tool output carries its own ANSI colours
	fmt.Fprint(tview.ANSIWriter(textView), strings.Join(lines, "\n"))
	// failures are at the bottom of a build log
	textView.ScrollToEnd()

	footer := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[gray]↑/↓ PgUp/PgDn Home/End scroll, q or Esc quits[white]")

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(textView, 0, 1, true).
		AddItem(footer, 1, 0, false)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc, tcell.KeyCtrlQ:
			app.Stop()
			return nil
		case tcell.KeyRune:
			if event.Rune() == 'q' {
				app.Stop()
				return nil
			}
		}
		return event
	})

	if err := app.SetRoot(layout, true).SetFocus(textView).Run(); err != nil {
		return fmt.Errorf("pager execution failed: %w", err)
	}
	return nil
}

func printLines(lines []string) {
	for _, line := range lines {
		fmt.Println(line)
	}
}
