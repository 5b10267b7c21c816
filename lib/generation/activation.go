// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package generation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/yeet-rs/yeet/lib/codec"
)

const activationFile = "activation"

// Record marks an activation in flight. It is written before the
// system activation starts and cleared once the outcome is settled.
type Record struct {
	// Sequence is the pending generation being activated.
	Sequence uint64 `cbor:"1,keyasint"`

	// StorePath is the system being activated. If the host runs it
	// after a restart, the activation succeeded.
	StorePath string `cbor:"2,keyasint"`

	// PreviousStorePath is the system that ran before.
	PreviousStorePath string `cbor:"3,keyasint,omitempty"`

	StartedAt time.Time `cbor:"4,keyasint"`
}

func (s *Store) recordPath() string { return filepath.Join(s.root, activationFile) }

// WriteRecord atomically stores record with mode 0600.
func (s *Store) WriteRecord(record Record) error {
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("generation: encoding activation record: %w", err)
	}
	if err := writeFileAtomic(s.recordPath(), data, 0o600); err != nil {
		return fmt.Errorf("generation: %w", err)
	}
	return nil
}

// ReadRecord returns the activation record. ok is false when none
// exists.
func (s *Store) ReadRecord() (record Record, ok bool, err error) {
	data, err := os.ReadFile(s.recordPath())
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("generation: reading activation record: %w", err)
	}
	if err := codec.Unmarshal(data, &record); err != nil {
		return Record{}, false, fmt.Errorf("generation: decoding activation record: %w", err)
	}
	return record, true, nil
}

// ClearRecord removes the activation record. Idempotent.
func (s *Store) ClearRecord() error {
	if err := os.Remove(s.recordPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("generation: removing activation record: %w", err)
	}
	return nil
}

// Outcome is what Recover did with an interrupted activation.
type Outcome uint8

const (
	// NothingToRecover: no activation was in flight.
	NothingToRecover Outcome = iota
	// RecoveredCommit: the system runs the new store path; its
	// generation was committed.
	RecoveredCommit
	// RecoveredRollback: the system runs something else; the pending
	// generation was deleted.
	RecoveredRollback
)

func (o Outcome) String() string {
	switch o {
	case NothingToRecover:
		return "nothing"
	case RecoveredCommit:
		return "committed"
	case RecoveredRollback:
		return "rolled-back"
	}
	return "unknown"
}

// Recover settles an activation interrupted by a crash or reboot.
// runningStorePath is the system the host runs now.
func (s *Store) Recover(runningStorePath string) (Outcome, error) {
	record, ok, err := s.ReadRecord()
	if err != nil || !ok {
		return NothingToRecover, err
	}

	logger := s.logger.With("sequence", record.Sequence, "store_path", record.StorePath, "running", runningStorePath)
	outcome := RecoveredRollback
	pending, err := s.resume(record.Sequence)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("activation record without a generation")
	case err != nil:
		return NothingToRecover, err
	case runningStorePath == record.StorePath:
		if err := s.Commit(pending); err != nil {
			return NothingToRecover, err
		}
		if err := s.GC(); err != nil {
			logger.Warn("collecting old generations", "error", err)
		}
		outcome = RecoveredCommit
	default:
		if err := s.Rollback(pending); err != nil {
			return NothingToRecover, err
		}
	}

	if err := s.ClearRecord(); err != nil {
		return NothingToRecover, err
	}
	logger.Info("interrupted activation recovered", "outcome", outcome.String())
	return outcome, nil
}
