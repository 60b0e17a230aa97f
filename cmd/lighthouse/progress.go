package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/docker/go-units"
	"github.com/mattn/go-isatty"

	"github.com/melih/lighthouse/internal/events"
	"github.com/melih/lighthouse/internal/logger"
)

// transferProgress renders image transfer progress on one rewritten line
// when out is a terminal, and as log lines otherwise.
type transferProgress struct {
	mu     sync.Mutex
	out    io.Writer
	log    logger.Logger
	tty    bool
	active bool
}

func newTransferProgress(out io.Writer, log logger.Logger) *transferProgress {
	return &transferProgress{out: out, log: log, tty: isTerminal(out)}
}

func (p *transferProgress) Handle(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e.Kind != events.ImageTransferProgress {
		if p.active {
			fmt.Fprintln(p.out)
			p.active = false
		}
		return
	}

	size := units.HumanSize(float64(e.Bytes))
	if !p.tty {
		p.log.Info("image transfer progress", logger.String("service", e.Service), logger.String("transferred", size))
		return
	}
	fmt.Fprintf(p.out, "\r\033[K%s: transferred %s", e.Service, size)
	p.active = true
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
