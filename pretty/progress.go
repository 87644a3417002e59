package pretty

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sbomtools/sbomdiff/common"
	"golang.org/x/term"
)

// ProgressIndicator is fed by parser progress callbacks while reading
// very large documents.
type ProgressIndicator interface {
	Start()
	Stop(success bool)
	Update(current int64, message string)
	IsRunning() bool
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// ByteBar renders a single-line byte progress bar. Updates are monotonic:
// a lower byte count than already shown is ignored.
type ByteBar struct {
	label   string
	total   int64
	shown   int64
	running bool
	mu      sync.Mutex
}

// NewByteBar creates a progress bar for total bytes. Total below zero
// means unknown and renders a byte counter instead of a bar.
func NewByteBar(label string, total int64) ProgressIndicator {
	return &ByteBar{label: label, total: total}
}

func (it *ByteBar) Start() {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.running || !Interactive {
		return
	}
	it.running = true
	common.SetLogInterceptor(func(string) bool { return true })
}

func (it *ByteBar) Stop(success bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if !it.running {
		return
	}
	it.running = false
	common.ClearLogInterceptor()
	fmt.Fprintf(os.Stderr, "\r%s\r", strings.Repeat(" ", terminalWidth()-1))
	if success {
		common.Debug("%s: done.", it.label)
	}
}

func (it *ByteBar) IsRunning() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.running
}

func (it *ByteBar) Update(current int64, message string) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if !it.running || current < it.shown {
		return
	}
	it.shown = current
	if it.total > 0 {
		it.renderBar(current, message)
	} else {
		fmt.Fprintf(os.Stderr, "\r%s%s %s%s %s", Faint, it.label, sizeLabel(current), Reset, message)
	}
}

func (it *ByteBar) renderBar(current int64, message string) {
	width := terminalWidth() - len(it.label) - 20
	if width < 10 {
		width = 10
	}
	ratio := float64(current) / float64(it.total)
	if ratio > 1.0 {
		ratio = 1.0
	}
	filled := int(ratio * float64(width))
	bar := strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
	fmt.Fprintf(os.Stderr, "\r%s [%s%s%s] %3.0f%% %s", it.label, Cyan, bar, Reset, ratio*100, message)
}

func sizeLabel(count int64) string {
	switch {
	case count > 1024*1024*1024:
		return fmt.Sprintf("%.1f GiB", float64(count)/(1024*1024*1024))
	case count > 1024*1024:
		return fmt.Sprintf("%.1f MiB", float64(count)/(1024*1024))
	case count > 1024:
		return fmt.Sprintf("%.1f KiB", float64(count)/1024)
	default:
		return fmt.Sprintf("%d B", count)
	}
}
