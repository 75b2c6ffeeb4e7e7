// Package syncq keeps student decisions that could not reach the server so
// they can be replayed once the classroom network is back.
package syncq

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type Command struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	// Round is the round the player last saw open; 0 means unknown.
	Round int `json:"round,omitempty"`
}

// Queue is a JSON file of pending commands, oldest first.
type Queue struct {
	mu   sync.Mutex
	path string
}

// Open returns the queue kept under dir, creating dir when missing.
func Open(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create queue dir: %w", err)
	}
	return &Queue{path: filepath.Join(dir, "queue.json")}, nil
}

// Default is the queue in ~/.wsk.
func Default() (*Queue, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return Open(filepath.Join(home, ".wsk"))
}

func (q *Queue) Path() string {
	return q.path
}

func (q *Queue) Load() ([]Command, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

// Push appends cmd unless a command with the same idempotency key is
// already queued.
func (q *Queue) Push(cmd Command) error {
	if cmd.IdempotencyKey == "" {
		return errors.New("queued command needs an idempotency key")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	commands, err := q.load()
	if err != nil {
		return err
	}
	for _, c := range commands {
		if c.IdempotencyKey == cmd.IdempotencyKey {
			return nil
		}
	}
	return q.save(append(commands, cmd))
}

// Drop removes the commands whose keys are in done and returns how many
// remain.
func (q *Queue) Drop(done map[string]bool) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	commands, err := q.load()
	if err != nil {
		return 0, err
	}
	kept := commands[:0]
	for _, c := range commands {
		if !done[c.IdempotencyKey] {
			kept = append(kept, c)
		}
	}
	return len(kept), q.save(kept)
}

func (q *Queue) load() ([]Command, error) {
	raw, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(raw) == 0) {
		return []Command{}, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", q.path, err)
	}
	return out, nil
}

// save removes the file once the queue is empty.
func (q *Queue) save(commands []Command) error {
	if len(commands) == 0 {
		if err := os.Remove(q.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, q.path)
}
