// Package terminal prints operator-facing banners and rings the terminal bell.
package terminal

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	Blue  = lipgloss.Color("#1F5FAF")
	White = lipgloss.Color("#FFFFFF")
	Green = lipgloss.Color("#A6A75D")
	Red   = lipgloss.Color("#AC3835")
)

var (
	bannerStyle  = lipgloss.NewStyle().Background(Blue).Foreground(White).Padding(0, 1)
	successStyle = lipgloss.NewStyle().Foreground(Green).Bold(true)
	failureStyle = lipgloss.NewStyle().Foreground(Red).Bold(true)
)

const beepPause = 333 * time.Millisecond

type Notifier struct {
	out   io.Writer
	bell  io.Writer
	mu    sync.Mutex
	pause time.Duration
}

// New writes banners to out and bell characters to bell. A nil bell disables
// beeping.
func New(out, bell io.Writer) *Notifier {
	return &Notifier{out: out, bell: bell, pause: beepPause}
}

func (n *Notifier) Announce(msg string) { n.print(bannerStyle, msg) }

func (n *Notifier) Success(msg string) { n.print(successStyle, msg) }

func (n *Notifier) Failure(msg string) { n.print(failureStyle, msg) }

// Beep rings the bell in the background. Write errors are dropped.
func (n *Notifier) Beep(times int) {
	if n.bell == nil || times <= 0 {
		return
	}
	go func() {
		defer func() { _ = recover() }()
		for i := 0; i < times; i++ {
			if i > 0 {
				time.Sleep(n.pause)
			}
			n.mu.Lock()
			_, err := io.WriteString(n.bell, "\a")
			n.mu.Unlock()
			if err != nil {
				return
			}
		}
	}()
}

func (n *Notifier) print(style lipgloss.Style, msg string) {
	var b strings.Builder
	for _, line := range strings.Split(msg, "\n") {
		b.WriteString(style.Render(line))
		b.WriteByte('\n')
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprint(n.out, b.String())
}
