package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/time/rate"

	"cutroom/internal/logging"
)

const progressBarWidth = 30

// progressPrinter renders export progress. Terminals get a redrawn bar
// limited to ten updates per second; other writers get one line per 10%.
type progressPrinter struct {
	out     io.Writer
	tty     bool
	limiter *rate.Limiter
	sampler *logging.ProgressSampler

	mu    sync.Mutex
	drawn bool
	width int
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{
		out:     out,
		tty:     isTerminal(out),
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
		sampler: logging.NewProgressSampler(0.1),
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// update is an export.ProgressFunc.
func (p *progressPrinter) update(fraction float64, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.tty {
		if p.sampler.ShouldLog(fraction, "export") {
			fmt.Fprintf(p.out, "%5.1f%% %s\n", fraction*100, message)
		}
		return
	}
	if fraction < 1 && !p.limiter.Allow() {
		return
	}
	line := fmt.Sprintf("%s %5.1f%% %s", bar(fraction), fraction*100, message)
	pad := ""
	if n := p.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(p.out, "\r%s%s", line, pad)
	p.width = len(line)
	p.drawn = true
}

// finish ends a redrawn line so later output starts on a fresh row.
func (p *progressPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tty && p.drawn {
		fmt.Fprintln(p.out)
		p.drawn = false
	}
}

func bar(fraction float64) string {
	filled := int(fraction*progressBarWidth + 0.5)
	filled = min(max(filled, 0), progressBarWidth)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", progressBarWidth-filled) + "]"
}
