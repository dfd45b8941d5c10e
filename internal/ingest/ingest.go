// Package ingest reads timestamped stream events, one per line:
//
//	subject predicate object timestamp
//
// Blank lines and lines starting with "#" are skipped.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrMalformedEvent is returned for lines that are not "s p o ts".
var ErrMalformedEvent = errors.New("malformed event")

// Event is one timestamped fact.
type Event struct {
	Subject   string
	Predicate string
	Object    string
	Timestamp int64
}

// Handler consumes events. Returning an error stops the reader.
type Handler func(Event) error

// ParseLine parses one event line. ok is false for blank and comment lines.
func ParseLine(line string) (ev Event, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Event{}, false, nil
	}
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return Event{}, false, fmt.Errorf("%w: want 4 fields, got %d in %q", ErrMalformedEvent, len(fields), line)
	}
	ts, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Event{}, false, fmt.Errorf("%w: timestamp %q: %v", ErrMalformedEvent, fields[3], err)
	}
	return Event{Subject: fields[0], Predicate: fields[1], Object: fields[2], Timestamp: ts}, true, nil
}

// Read parses every event in r and passes it to fn.
func Read(ctx context.Context, r io.Reader, fn Handler) error {
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, ok, err := ParseLine(sc.Text())
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		if !ok {
			continue
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return sc.Err()
}
