package qtcross

import (
	"github.com/gookit/color"
)

var (
	ConfigFile = "/etc/qtcross.conf"
	Debug      bool
	version    = "dev"     // overridden at build time
	buildDate  = "unknown" // overridden at build time
)

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)
