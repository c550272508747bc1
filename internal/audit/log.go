package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sentinel-voice/core/internal/apperr"
)

// Log is an append-only, hash-chained JSONL file. Appends are
// serialized: the chain is only meaningful if each event's prev_hash is
// computed from the immediately preceding write.
type Log struct {
	mu       sync.Mutex
	file     *os.File
	lastHash string
}

// Open opens (creating if absent) the log at path and recovers
// lastHash by rehashing the final line, so a restarted process resumes
// the chain correctly instead of silently forking it.
func Open(path string) (*Log, error) {
	lastHash, err := recoverLastHash(path)
	if err != nil {
		return nil, apperr.Integrity("audit.open.recover", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, apperr.Config("audit.open", err)
	}

	return &Log{file: f, lastHash: lastHash}, nil
}

// recoverLastHash reads the log's final line and recomputes its hash.
// A missing or empty file yields GenesisHash, matching a brand-new
// deployment's chain start.
func recoverLastHash(path string) (string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return GenesisHash, nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	var lastLine string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			lastLine = line
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	if lastLine == "" {
		return GenesisHash, nil
	}

	var generic map[string]interface{}
	if err := json.Unmarshal([]byte(lastLine), &generic); err != nil {
		return "", fmt.Errorf("audit: recover last hash: %w", err)
	}
	delete(generic, "hash")
	return hashEvent(generic)
}

// Append links event to the current chain head, computes the event's own
// hash, stamps it onto event.Hash, and writes the stamped event. The
// hash is computed over the event before Hash is set (an event never
// hashes itself), then re-marshaled once more so the persisted line
// carries the stamped value.
func (l *Log) Append(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	event.PrevHash = l.lastHash
	event.Hash = ""

	raw, err := json.Marshal(event)
	if err != nil {
		return apperr.Schema("audit.append.marshal", err)
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return apperr.Schema("audit.append.remarshal", err)
	}

	newHash, err := hashEvent(generic)
	if err != nil {
		return apperr.Integrity("audit.append.hash", err)
	}

	event.Hash = newHash
	stamped, err := json.Marshal(event)
	if err != nil {
		return apperr.Schema("audit.append.marshal_stamped", err)
	}

	if _, err := l.file.Write(append(stamped, '\n')); err != nil {
		return apperr.Transient("audit.append.write", err)
	}

	l.lastHash = newHash
	return nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	return l.file.Close()
}

func hashEvent(v interface{}) (string, error) {
	canon, err := canonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Replay walks a log file from the beginning and verifies that every
// line's prev_hash matches the recomputed hash of the line before it,
// returning the index of the first broken link, or -1 if the chain is
// intact end to end.
func Replay(path string) (brokenAtLine int, err error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	expected := GenesisHash
	line := 0
	for scanner.Scan() {
		line++
		var generic map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &generic); err != nil {
			return line, err
		}
		prevHash, _ := generic["prev_hash"].(string)
		if prevHash != expected {
			return line, nil
		}
		delete(generic, "hash")
		newHash, err := hashEvent(generic)
		if err != nil {
			return line, err
		}
		expected = newHash
	}
	if err := scanner.Err(); err != nil {
		return line, err
	}
	return -1, nil
}
