// Copyright 2026 The Foveated Streaming Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// DefaultPath returns the well-known per-user location for the
// persisted ServerId: os.UserConfigDir()/foveated-streaming/server-id.json.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("identity: resolving user config directory: %w", err)
	}
	return filepath.Join(configDir, "foveated-streaming", "server-id.json"), nil
}

// record is the on-disk representation of the ServerId file.
type record struct {
	ServerID string `json:"server_id"`
}

// Store persists and retrieves the host's ServerId at a single
// well-known path. A Store is safe for concurrent use within one
// process; GetOrCreate is additionally safe against other processes on
// the same host racing the first creation.
type Store struct {
	path string
}

// New returns a Store backed by the file at path. Use DefaultPath to
// compute the well-known location when no override is configured.
func New(path string) *Store {
	return &Store{path: path}
}

// GetOrCreate returns the host's persisted ServerId, generating and
// storing a fresh one on first call. It never changes once generated.
//
// Race safety: the candidate value is written to a temporary file in
// the same directory, then promoted into place with os.Link, which
// fails with an "already exists" error if another process won the race
// first. The loser discards its candidate and reads the winner's
// value — it never observes a partially written file, and it never
// reports its own generated-but-discarded UUID.
func (s *Store) GetOrCreate() (string, error) {
	if id, ok, err := s.read(); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return "", fmt.Errorf("identity: creating config directory: %w", err)
	}

	candidate, err := newServerID()
	if err != nil {
		return "", err
	}

	won, err := s.tryCreate(candidate)
	if err != nil {
		return "", err
	}
	if won {
		return candidate, nil
	}

	// Lost the race: the winner's file now exists. Read it.
	id, ok, err := s.read()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("identity: lost creation race but %s is still absent", s.path)
	}
	return id, nil
}

// read returns the stored ServerId, or ok=false if the file does not
// exist yet.
func (s *Store) read() (string, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("identity: reading %s: %w", s.path, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", false, fmt.Errorf("identity: parsing %s: %w", s.path, err)
	}
	if rec.ServerID == "" {
		return "", false, fmt.Errorf("identity: %s contains an empty server_id", s.path)
	}
	return rec.ServerID, true, nil
}

// tryCreate writes candidate to a temporary file and attempts to
// promote it to s.path via a hard link. Returns won=true if this call
// created s.path; won=false if another process already holds it.
func (s *Store) tryCreate(candidate string) (won bool, err error) {
	data, err := json.Marshal(record{ServerID: candidate})
	if err != nil {
		return false, fmt.Errorf("identity: marshaling server id: %w", err)
	}
	data = append(data, '\n')

	temporaryPath := s.path + ".tmp-" + randomSuffix()

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return false, fmt.Errorf("identity: creating temporary file: %w", err)
	}
	defer os.Remove(temporaryPath)

	if _, err := file.Write(data); err != nil {
		file.Close()
		return false, fmt.Errorf("identity: writing temporary file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return false, fmt.Errorf("identity: syncing temporary file: %w", err)
	}
	if err := file.Close(); err != nil {
		return false, fmt.Errorf("identity: closing temporary file: %w", err)
	}

	if err := os.Link(temporaryPath, s.path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("identity: promoting server id file: %w", err)
	}

	if parentDir, err := os.Open(filepath.Dir(s.path)); err == nil {
		parentDir.Sync()
		parentDir.Close()
	}

	return true, nil
}

// newServerID generates a 32-lowercase-hex ServerId: a UUID with its
// separating hyphens removed.
func newServerID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("identity: generating uuid: %w", err)
	}
	hex := id.String()
	compact := make([]byte, 0, 32)
	for i := 0; i < len(hex); i++ {
		if hex[i] != '-' {
			compact = append(compact, hex[i])
		}
	}
	return string(compact), nil
}

// randomSuffix returns a short random hex string used to avoid
// temporary-file collisions between concurrent GetOrCreate callers in
// this process.
func randomSuffix() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failure on a supported platform is essentially
		// unheard of; a PID-based fallback still yields a usable,
		// if less unique, temporary file name.
		return strconv.Itoa(os.Getpid())
	}
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i, b := range buf {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}
