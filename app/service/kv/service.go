package kv

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samber/do"

	"graphmem/app/config"
)

// ErrKeyNotFound is returned by Get for a key with no stored value.
var ErrKeyNotFound = errors.New("key not found")

type entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Service is a flat key-value store kept beside the knowledge graph,
// persisted the same way: one JSON record per line, rewritten in full on
// every mutation. Keys keep their first-insertion order; reloading a file
// with repeated keys keeps the last value written.
type Service struct {
	path string
	mu   sync.RWMutex
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	if err := os.MkdirAll(cfg.Storage.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}

	return &Service{
		path: filepath.Join(cfg.Storage.Dir, "kv.json"),
	}, nil
}

func (s *Service) load() ([]entry, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []entry{}, nil
		}

		return nil, fmt.Errorf("failed to open kv file: %w", err)
	}
	defer file.Close()

	var entries []entry
	index := make(map[string]int)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var e entry
		if err = json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("failed to parse JSON line: %w", err)
		}

		if i, ok := index[e.Key]; ok {
			entries[i].Value = e.Value
			continue
		}

		index[e.Key] = len(entries)
		entries = append(entries, e)
	}

	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading kv file: %w", err)
	}

	return entries, nil
}

func (s *Service) save(entries []entry) error {
	file, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create/open kv file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		if _, err = writer.WriteString(string(data) + "\n"); err != nil {
			return fmt.Errorf("failed to write entry: %w", err)
		}
	}

	if err = writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}

	return nil
}

// Set stores the value under the key, overwriting any previous value.
func (s *Service) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	found := false
	for i := range entries {
		if entries[i].Key == key {
			entries[i].Value = value
			found = true
			break
		}
	}

	if !found {
		entries = append(entries, entry{Key: key, Value: value})
	}

	if err = s.save(entries); err != nil {
		return err
	}

	slog.Info("Set key", "key", key)

	return nil
}

// Get returns the value stored under the key, or ErrKeyNotFound.
func (s *Service) Get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.load()
	if err != nil {
		return "", err
	}

	for _, e := range entries {
		if e.Key == key {
			return e.Value, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
}

// Delete removes the key if present. Missing keys are not an error.
func (s *Service) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}

	kept := entries[:0]
	for _, e := range entries {
		if e.Key != key {
			kept = append(kept, e)
		}
	}

	if err = s.save(kept); err != nil {
		return err
	}

	slog.Info("Deleted key", "key", key)

	return nil
}

// Keys lists every stored key in first-insertion order.
func (s *Service) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}

	return keys, nil
}
