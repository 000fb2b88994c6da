package ledger

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrMalformedTail is returned by Open when the last line of an existing
// ledger file cannot be parsed — spec §4.3 treats this as fatal: "the
// ledger must not be silently re-started."
var ErrMalformedTail = errors.New("ledger: malformed tail entry")

// Ledger is one session's append-only hash-chained JSONL file.
type Ledger struct {
	mu        sync.Mutex
	file      *os.File
	writer    *bufio.Writer
	sessionID string
	seq       int64
	prevHash  string
	closed    bool
}

// Open creates the parent directory if needed and opens path in append
// mode. If the file already has content, the last line is parsed to
// recover seq/prevHash so numbering and chaining continue correctly.
func Open(path, sessionID string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	existing, err := readLastLine(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening ledger file: %w", err)
	}

	l := &Ledger{
		file:      f,
		writer:    bufio.NewWriter(f),
		sessionID: sessionID,
		seq:       0,
		prevHash:  GenesisHash,
	}
	if existing != nil {
		l.seq = existing.Seq
		l.prevHash = existing.Hash
	}
	return l, nil
}

// readLastLine returns the last parsed Entry of an existing file, nil if
// the file does not exist or is empty, and ErrMalformedTail if the file
// has content but its last line does not parse.
func readLastLine(path string) (*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening existing ledger file: %w", err)
	}
	defer f.Close()

	var lastLine string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lastLine = line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading existing ledger file: %w", err)
	}
	if lastLine == "" {
		return nil, nil
	}

	var e Entry
	if err := json.Unmarshal([]byte(lastLine), &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTail, err)
	}
	return &e, nil
}

// Append writes one entry, computing its hash over the canonical input
// "seq|ts|prev|type|data" (data bytes taken verbatim from marshaling v,
// never re-ordered).
func (l *Ledger) Append(eventType EventType, v any) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Entry{}, errors.New("ledger: append on closed ledger")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return Entry{}, fmt.Errorf("marshaling ledger entry data: %w", err)
	}

	seq := l.seq + 1
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
	hash := computeHash(seq, ts, l.prevHash, eventType, data)

	entry := Entry{
		Seq:       seq,
		Timestamp: ts,
		Hash:      hash,
		Prev:      l.prevHash,
		SessionID: l.sessionID,
		Type:      eventType,
		Data:      data,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("marshaling ledger line: %w", err)
	}
	if _, err := l.writer.Write(line); err != nil {
		return Entry{}, fmt.Errorf("writing ledger line: %w", err)
	}
	if err := l.writer.WriteByte('\n'); err != nil {
		return Entry{}, fmt.Errorf("writing ledger newline: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return Entry{}, fmt.Errorf("flushing ledger line: %w", err)
	}

	l.seq = seq
	l.prevHash = hash
	return entry, nil
}

// Close ends the stream, flushing any buffered bytes.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.writer.Flush(); err != nil {
		l.file.Close()
		return fmt.Errorf("flushing ledger on close: %w", err)
	}
	return l.file.Close()
}

func computeHash(seq int64, ts, prev string, eventType EventType, data json.RawMessage) string {
	input := fmt.Sprintf("%d|%s|%s|%s|%s", seq, ts, prev, eventType, data)
	sum := sha256.Sum256([]byte(input))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// VerifyResult is verifyIntegrity's report, per spec §4.3.
type VerifyResult struct {
	Valid    bool
	Entries  int
	BrokenAt int64
	Error    string
}

// VerifyIntegrity replays path entry by entry, checking the hash chain.
// An empty file is valid with zero entries.
func VerifyIntegrity(path string) (VerifyResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("opening ledger file for verification: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	prevHash := GenesisHash
	count := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return VerifyResult{Valid: false, Entries: count, BrokenAt: int64(count + 1), Error: fmt.Sprintf("parse error: %v", err)}, nil
		}
		if e.Prev != prevHash {
			return VerifyResult{Valid: false, Entries: count, BrokenAt: e.Seq, Error: "Hash mismatch: prev does not match preceding entry"}, nil
		}
		want := computeHash(e.Seq, e.Timestamp, e.Prev, e.Type, e.Data)
		if want != e.Hash {
			return VerifyResult{Valid: false, Entries: count, BrokenAt: e.Seq, Error: "Hash mismatch: recomputed hash does not match stored hash"}, nil
		}
		prevHash = e.Hash
		count++
	}
	if err := scanner.Err(); err != nil {
		return VerifyResult{}, fmt.Errorf("reading ledger file for verification: %w", err)
	}

	return VerifyResult{Valid: true, Entries: count}, nil
}

// Summary is a per-event-type count of one ledger file's entries, plus the
// session ID recovered from its first entry.
type Summary struct {
	SessionID string
	Counts    map[EventType]int
}

// Summarize replays path and tallies entries by event type, for report
// tooling (the CLI's report command and the HTTP façade's ledger/summary
// endpoint). Unlike VerifyIntegrity it does not check the hash chain.
func Summarize(path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, fmt.Errorf("opening ledger file for summary: %w", err)
	}
	defer f.Close()

	summary := Summary{Counts: make(map[EventType]int)}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		summary.Counts[e.Type]++
		if summary.SessionID == "" {
			summary.SessionID = e.SessionID
		}
	}
	if err := scanner.Err(); err != nil {
		return Summary{}, fmt.Errorf("reading ledger file for summary: %w", err)
	}
	return summary, nil
}
