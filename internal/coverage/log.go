package coverage

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"

	"govern/internal/decision"
	pkgerrors "govern/pkg/errors"
)

// Observed is the set of coverage hits seen in one or more logs. Duplicate
// lines are harmless: membership is all that matters.
type Observed struct {
	hits map[Hit]struct{}
}

func NewObserved() *Observed {
	return &Observed{hits: make(map[Hit]struct{})}
}

func (o *Observed) Contains(hit Hit) bool {
	_, ok := o.hits[hit]
	return ok
}

func (o *Observed) Add(hit Hit) {
	o.hits[hit] = struct{}{}
}

func (o *Observed) Len() int { return len(o.hits) }

// ReadLog parses a newline-delimited coverage log into o. Blank lines are
// skipped; malformed lines are errors rather than silently dropped.
func (o *Observed) ReadLog(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		hit, err := ParseHit(line)
		if err != nil {
			return err
		}
		o.Add(hit)
	}
	return scanner.Err()
}

// ReadLogFiles loads every named log into a fresh Observed set.
func ReadLogFiles(paths ...string) (*Observed, error) {
	observed := NewObserved()
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeConfiguration, "open coverage log")
		}
		err = observed.ReadLog(f)
		f.Close()
		if err != nil {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeInvalidInput, "parse coverage log "+path)
		}
	}
	return observed, nil
}

// LogWriter appends coverage lines to a log file. The decision service writes
// one line per evaluation while tests run; writes are serialized so parallel
// tests cannot interleave partial lines.
type LogWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func NewLogWriter(w io.Writer) *LogWriter {
	return &LogWriter{w: w}
}

// OpenLogFile opens (creating or appending) a coverage log for writing.
func OpenLogFile(path string) (*LogWriter, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(err, pkgerrors.CodePersistence, "open coverage log for append")
	}
	return NewLogWriter(f), f, nil
}

// Record appends one hit line.
func (w *LogWriter) Record(hit Hit) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(w.w, hit.Key()+"\n"); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodePersistence, "append coverage line")
	}
	return nil
}

// RecordDecision satisfies the decision service's coverage port.
func (w *LogWriter) RecordDecision(action string, outcome decision.Outcome, code string) error {
	return w.Record(Hit{Action: action, Decision: outcome, Code: code})
}
