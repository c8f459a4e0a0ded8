package qtcross

import (
	"fmt"
	"strings"
)

// color-compatible printer interface (works with *color.Theme and *color.Style)
type colorPrinter interface {
	Printf(format string, a ...any)
	Println(a ...any)
}

// cPrintf prints with a colored style or falls back to fmt.Printf when nil
func cPrintf(p colorPrinter, format string, a ...any) {
	if p == nil {
		fmt.Printf(format, a...)
		return
	}
	p.Printf(format, a...)
}

// arrowf prints the "-> " marker followed by a styled message.
func arrowf(p colorPrinter, format string, a ...any) {
	colArrow.Print("-> ")
	cPrintf(p, format, a...)
}

// stageBanner announces the start of a pipeline stage.
func stageBanner(s Stage) {
	fmt.Println()
	colNote.Println(strings.Repeat("=", 10) + " " + s.Title() + " " + strings.Repeat("=", 10))
}

// debugf prints debug messages when Debug is true
func debugf(format string, args ...any) {
	if Debug {
		fmt.Printf(format, args...)
	}
}
