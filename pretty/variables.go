package pretty

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sbomtools/sbomdiff/common"
)

var (
	Colorless   bool
	Iconic      bool
	Disabled    bool
	Interactive bool
	White       string
	Grey        string
	Black       string
	Red         string
	Green       string
	Blue        string
	Yellow      string
	Magenta     string
	Cyan        string
	Reset       string
	Sparkles    string
	Home        string
	Clear       string
	Bold        string
	Faint       string
	Italic      string
	Underline   string
)

func csi(code string) string {
	return fmt.Sprintf("\033[%s", code)
}

func Setup() {
	stdin := isatty.IsTerminal(os.Stdin.Fd())
	stdout := isatty.IsTerminal(os.Stdout.Fd())
	stderr := isatty.IsTerminal(os.Stderr.Fd())

	if os.Getenv("NO_COLOR") != "" {
		Colorless = true
	}
	if os.Getenv("TERM") == "" || os.Getenv("TERM") == "dumb" {
		Colorless = true
	}

	// Prompts need all three streams on a TTY; colors only need stdout.
	Interactive = stdin && stdout && stderr
	visualOutput := stdout && !Colorless
	Iconic = Interactive && !Colorless

	common.Trace("Interactive mode enabled: %v; colors enabled: %v", Interactive, visualOutput && !Disabled)
	if visualOutput && !Disabled {
		White = csi("97m")
		Grey = csi("90m")
		Black = csi("30m")
		Red = csi("91m")
		Green = csi("92m")
		Yellow = csi("93m")
		Blue = csi("94m")
		Magenta = csi("95m")
		Cyan = csi("96m")
		Reset = csi("0m")
		Home = csi("1;1H")
		Clear = csi("0J")
		Bold = csi("1m")
		Faint = csi("2m")
		Italic = csi("3m")
		Underline = csi("4m")
	}
	if Iconic {
		Sparkles = "✨ "
	}
}
