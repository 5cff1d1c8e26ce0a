package main

import (
	"io"

	"github.com/fatih/color"
	"github.com/srg/ptybridge/bridge"
)

// chunkPrinter writes shell output to out and everything else to errOut.
// It is registered with Terminal.OnChunk and only ever runs on the goroutine
// calling Dispatch, so it needs no locking.
type chunkPrinter struct {
	out    io.Writer
	errOut io.Writer

	warn *color.Color
	fail *color.Color
	note *color.Color

	// atLineStart tracks whether the last output ended with a newline so
	// that notices never start in the middle of a shell line.
	atLineStart bool
}

func newChunkPrinter(out, errOut io.Writer) *chunkPrinter {
	return &chunkPrinter{
		out:         out,
		errOut:      errOut,
		warn:        color.New(color.FgYellow),
		fail:        color.New(color.FgRed, color.Bold),
		note:        color.New(color.Faint),
		atLineStart: true,
	}
}

// Print renders a single chunk.
func (p *chunkPrinter) Print(c bridge.Chunk) {
	if c.IsOutput() {
		if c.Text == "" {
			return
		}
		_, _ = io.WriteString(p.out, c.Text)
		last := c.Text[len(c.Text)-1]
		p.atLineStart = last == '\n' || last == '\r'
		return
	}

	if !p.atLineStart {
		_, _ = io.WriteString(p.errOut, "\n")
		p.atLineStart = true
	}

	switch c.Kind {
	case bridge.KindDiagnostic:
		_, _ = p.warn.Fprintf(p.errOut, "[ptybridge] %s\n", c.Text)
	case bridge.KindError:
		_, _ = p.fail.Fprintf(p.errOut, "[ptybridge] %s\n", c.Text)
	case bridge.KindExit:
		_, _ = p.note.Fprintf(p.errOut, "[ptybridge] %s\n", c.Text)
	}
}
