package ptyio

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// Decoded is the text produced from one read.
type Decoded struct {
	Text     string
	Replaced bool // at least one invalid sequence became U+FFFD
	Bytes    int  // input bytes consumed, carried bytes included
}

// Decoder turns raw pty reads into valid UTF-8 text. Invalid bytes are replaced
// rather than rejected. A multi-byte rune split across two reads is held back
// and completed by the next read. A Decoder is owned by one goroutine.
type Decoder struct {
	dec   *encoding.Decoder
	carry []byte
}

// NewDecoder creates a lenient UTF-8 decoder.
func NewDecoder() *Decoder {
	return &Decoder{dec: unicode.UTF8.NewDecoder()}
}

// Decode converts p, prefixed by any bytes carried from the previous call. If
// the transformer fails, the text is still produced through a fallback and the
// error is returned alongside it.
func (d *Decoder) Decode(p []byte) (Decoded, error) {
	data := p
	if len(d.carry) > 0 {
		data = append(d.carry, p...)
		d.carry = nil
	}

	cut := incompleteSuffix(data)
	if cut < len(data) {
		d.carry = append([]byte(nil), data[cut:]...)
	}
	return d.convert(data[:cut])
}

// Flush converts whatever is still carried, replacing the unfinished rune.
// It returns an empty Decoded when nothing is pending.
func (d *Decoder) Flush() (Decoded, error) {
	if len(d.carry) == 0 {
		return Decoded{}, nil
	}
	rest := d.carry
	d.carry = nil
	return d.convert(rest)
}

// Pending returns the number of carried bytes.
func (d *Decoder) Pending() int {
	return len(d.carry)
}

func (d *Decoder) convert(b []byte) (Decoded, error) {
	if len(b) == 0 {
		return Decoded{}, nil
	}
	replaced := !utf8.Valid(b)

	out, err := d.dec.Bytes(b)
	if err != nil {
		return Decoded{
			Text:     strings.ToValidUTF8(string(b), string(utf8.RuneError)),
			Replaced: true,
			Bytes:    len(b),
		}, fmt.Errorf("utf-8 decode of %d bytes: %w", len(b), err)
	}
	return Decoded{Text: string(out), Replaced: replaced, Bytes: len(b)}, nil
}

// incompleteSuffix returns the index where a trailing, not yet complete rune
// starts, or len(b) when b does not end inside a rune.
func incompleteSuffix(b []byte) int {
	limit := len(b) - (utf8.UTFMax - 1)
	if limit < 0 {
		limit = 0
	}
	for i := len(b) - 1; i >= limit; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		// FullRune treats invalid encodings as complete, so a false here means
		// a valid prefix still waiting for continuation bytes.
		if !utf8.FullRune(b[i:]) {
			return i
		}
		break
	}
	return len(b)
}
