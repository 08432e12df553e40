// Package calendar renders appointments as an iCalendar (RFC 5545) feed.
package calendar

import (
	"bufio"
	"io"
	"strings"
	"time"
)

const (
	StatusConfirmed = "CONFIRMED"
	StatusTentative = "TENTATIVE"

	maxLineOctets = 75
	stampLayout   = "20060102T150405Z"
)

type Event struct {
	UID         string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Status      string
}

type Feed struct {
	ProdID string
	Name   string
	Stamp  time.Time
	Events []Event
}

var textEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\r\n", `\n`, "\n", `\n`)

func escapeText(s string) string {
	return textEscaper.Replace(s)
}

func formatUTC(t time.Time) string {
	return t.UTC().Format(stampLayout)
}

// Write encodes the feed with CRLF line endings and folds long lines.
func Write(w io.Writer, f Feed) error {
	bw := bufio.NewWriter(w)
	line := func(name, value string) {
		writeFolded(bw, name+":"+value)
	}

	line("BEGIN", "VCALENDAR")
	line("VERSION", "2.0")
	line("PRODID", f.ProdID)
	line("CALSCALE", "GREGORIAN")
	line("METHOD", "PUBLISH")
	if f.Name != "" {
		line("X-WR-CALNAME", escapeText(f.Name))
	}
	stamp := formatUTC(f.Stamp)
	for _, e := range f.Events {
		line("BEGIN", "VEVENT")
		line("UID", e.UID)
		line("DTSTAMP", stamp)
		line("DTSTART", formatUTC(e.Start))
		line("DTEND", formatUTC(e.End))
		line("SUMMARY", escapeText(e.Summary))
		if e.Description != "" {
			line("DESCRIPTION", escapeText(e.Description))
		}
		if e.Status != "" {
			line("STATUS", e.Status)
		}
		line("END", "VEVENT")
	}
	line("END", "VCALENDAR")
	return bw.Flush()
}

// writeFolded splits content lines longer than 75 octets without breaking
// a UTF-8 sequence; continuation lines start with a single space.
func writeFolded(w *bufio.Writer, s string) {
	limit := maxLineOctets
	for len(s) > limit {
		cut := limit
		for cut > 0 && !isRuneStart(s[cut]) {
			cut--
		}
		_, _ = w.WriteString(s[:cut])
		_, _ = w.WriteString("\r\n ")
		s = s[cut:]
		limit = maxLineOctets - 1
	}
	_, _ = w.WriteString(s)
	_, _ = w.WriteString("\r\n")
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
