package audit

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ErrChainBroken is returned by VerifyChain when a record does not link to
// its predecessor or its hash does not match its content.
var ErrChainBroken = errors.New("audit: hash chain is broken")

const (
	linePrefix = "AUDIT: "
	genesis    = "genesis"
)

// WriterSink writes hash-chained JSON lines, prefixed with "AUDIT: " for
// easy filtering.
type WriterSink struct {
	mu     sync.Mutex
	writer io.Writer
	head   string
	closer io.Closer
}

// NewWriterSink creates a sink writing to w, or os.Stdout when w is nil.
func NewWriterSink(w io.Writer) *WriterSink {
	if w == nil {
		w = os.Stdout
	}
	return &WriterSink{writer: w, head: genesis}
}

// OpenFileSink appends to the file at path, creating it if needed. An
// existing chain is verified and continued from its last hash.
func OpenFileSink(path string) (*WriterSink, error) {
	head := genesis
	if existing, err := os.Open(path); err == nil {
		head, err = chainHead(existing)
		_ = existing.Close()
		if err != nil {
			return nil, fmt.Errorf("audit: %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	s := NewWriterSink(f)
	s.head = head
	s.closer = f
	return s, nil
}

func (s *WriterSink) LogEvent(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.PreviousHash = s.head
	hash, err := hashEvent(e)
	if err != nil {
		return err
	}
	e.Hash = hash

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}
	line := make([]byte, 0, len(linePrefix)+len(data)+1)
	line = append(line, linePrefix...)
	line = append(line, data...)
	line = append(line, '\n')
	if _, err := s.writer.Write(line); err != nil {
		return fmt.Errorf("audit: write event: %w", err)
	}
	s.head = hash
	return nil
}

// Head returns the hash of the last written event.
func (s *WriterSink) Head() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head
}

// Close closes the underlying file, if the sink owns one.
func (s *WriterSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func hashEvent(e Event) (string, error) {
	e.Hash = ""
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("audit: hash event: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChain reads lines written by a WriterSink and checks every link.
// It returns the number of verified events.
func VerifyChain(r io.Reader) (int, error) {
	n, _, err := walkChain(r)
	return n, err
}

func chainHead(r io.Reader) (string, error) {
	_, head, err := walkChain(r)
	return head, err
}

func walkChain(r io.Reader) (int, string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	prev := genesis
	n := 0
	for sc.Scan() {
		line := bytes.TrimPrefix(sc.Bytes(), []byte(linePrefix))
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return n, prev, fmt.Errorf("audit: record %d: %w", n+1, err)
		}
		if e.PreviousHash != prev {
			return n, prev, fmt.Errorf("%w at record %d: previous hash mismatch", ErrChainBroken, n+1)
		}
		want, err := hashEvent(e)
		if err != nil {
			return n, prev, err
		}
		if want != e.Hash {
			return n, prev, fmt.Errorf("%w at record %d: content hash mismatch", ErrChainBroken, n+1)
		}
		prev = e.Hash
		n++
	}
	return n, prev, sc.Err()
}
