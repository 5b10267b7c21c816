// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package generation

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/yeet-rs/yeet/lib/codec"
	"github.com/yeet-rs/yeet/lib/manifest"
	"github.com/yeet-rs/yeet/lib/secret"
)

const (
	currentLink    = "secret"
	generationsDir = "secret.d"
	metadataFile   = ".generation"

	directoryMode = 0o751
)

var (
	// ErrFinished is returned when a pending generation is used after
	// Commit or Rollback.
	ErrFinished = errors.New("generation: pending generation already finished")

	// ErrNotSealed is returned by Commit for a generation whose
	// metadata has not been written.
	ErrNotSealed = errors.New("generation: pending generation not sealed")
)

// Metadata describes a generation. It is stored inside the generation
// directory.
type Metadata struct {
	Sequence       uint64    `cbor:"1,keyasint"`
	StorePath      string    `cbor:"2,keyasint"`
	ManifestDigest [32]byte  `cbor:"3,keyasint"`
	CreatedAt      time.Time `cbor:"4,keyasint"`

	// Files maps secret names to file names within the directory.
	Files map[string]string `cbor:"5,keyasint"`
}

// Generation is a committed snapshot.
type Generation struct {
	Metadata
	Dir string
}

// File returns the path of secret name within the generation.
func (g Generation) File(name string) (string, bool) {
	fileName, ok := g.Files[name]
	if !ok {
		return "", false
	}
	return filepath.Join(g.Dir, fileName), true
}

// Config configures a Store.
type Config struct {
	// Root holds the generations and the current marker.
	Root string

	// Sink writes secret files. Nil means FileSink{}.
	Sink Sink

	Logger *slog.Logger
}

// Store manages generations under one root. It is used by a single
// agent; callers serialize mutations.
type Store struct {
	root   string
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

// Open prepares root and returns a Store over it.
func Open(config Config) (*Store, error) {
	if config.Sink == nil {
		config.Sink = FileSink{}
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Join(config.Root, generationsDir), 0o755); err != nil {
		return nil, fmt.Errorf("generation: preparing %s: %w", config.Root, err)
	}
	return &Store{root: config.Root, sink: config.Sink, logger: config.Logger, now: time.Now}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

func (s *Store) dirFor(sequence uint64) string {
	return filepath.Join(s.root, generationsDir, strconv.FormatUint(sequence, 10))
}

func readMetadata(dir string) (Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return Metadata{}, fmt.Errorf("generation: reading metadata of %s: %w", dir, err)
	}
	var metadata Metadata
	if err := codec.Unmarshal(data, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("generation: decoding metadata of %s: %w", dir, err)
	}
	return metadata, nil
}

// currentSequence resolves the secret symlink. ok is false when no
// generation has been committed.
func (s *Store) currentSequence() (sequence uint64, ok bool, err error) {
	target, err := os.Readlink(filepath.Join(s.root, currentLink))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("generation: reading current marker: %w", err)
	}
	sequence, err = strconv.ParseUint(filepath.Base(target), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("generation: current marker points at %q: %w", target, err)
	}
	return sequence, true, nil
}

// Current returns the current generation. ok is false before the
// first commit.
func (s *Store) Current() (Generation, bool, error) {
	sequence, ok, err := s.currentSequence()
	if err != nil || !ok {
		return Generation{}, false, err
	}
	dir := s.dirFor(sequence)
	metadata, err := readMetadata(dir)
	if err != nil {
		return Generation{}, false, err
	}
	return Generation{Metadata: metadata, Dir: dir}, true, nil
}

// sequences lists the numbered directories under secret.d, ascending.
func (s *Store) sequences() ([]uint64, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, generationsDir))
	if err != nil {
		return nil, fmt.Errorf("generation: listing generations: %w", err)
	}
	var sequences []uint64
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sequence, err := strconv.ParseUint(entry.Name(), 10, 64)
		if err != nil {
			continue
		}
		sequences = append(sequences, sequence)
	}
	sort.Slice(sequences, func(i, j int) bool { return sequences[i] < sequences[j] })
	return sequences, nil
}

// Begin creates an empty pending generation numbered after every
// existing directory.
func (s *Store) Begin(storePath string, digest [32]byte) (*Pending, error) {
	sequences, err := s.sequences()
	if err != nil {
		return nil, err
	}
	var next uint64 = 1
	if len(sequences) > 0 {
		next = sequences[len(sequences)-1] + 1
	}

	dir := s.dirFor(next)
	if err := os.Mkdir(dir, directoryMode); err != nil {
		return nil, fmt.Errorf("generation: creating %s: %w", dir, err)
	}
	// Mkdir is subject to the umask.
	if err := os.Chmod(dir, directoryMode); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("generation: chmod %s: %w", dir, err)
	}

	s.logger.Info("generation started", "sequence", next, "store_path", storePath)
	return &Pending{
		store: s,
		dir:   dir,
		metadata: Metadata{
			Sequence:       next,
			StorePath:      storePath,
			ManifestDigest: digest,
			CreatedAt:      s.now().UTC(),
			Files:          make(map[string]string),
		},
	}, nil
}

// Pending is a generation under construction.
type Pending struct {
	store    *Store
	dir      string
	metadata Metadata
	sealed   bool
	finished bool
}

// Sequence returns the pending generation's number.
func (p *Pending) Sequence() uint64 { return p.metadata.Sequence }

// Dir returns the pending generation's directory.
func (p *Pending) Dir() string { return p.dir }

// StorePath returns the system the generation was built for.
func (p *Pending) StorePath() string { return p.metadata.StorePath }

// Place writes the secret name as described by entry. plaintext is
// closed before Place returns.
func (p *Pending) Place(name string, entry manifest.Entry, plaintext *secret.Buffer) error {
	defer plaintext.Close()
	if p.finished {
		return ErrFinished
	}
	if p.sealed {
		return fmt.Errorf("generation: placing %q after seal", name)
	}
	if filepath.Base(entry.Name) != entry.Name || entry.Name == metadataFile {
		return fmt.Errorf("generation: invalid file name %q for secret %q", entry.Name, name)
	}
	if err := p.store.sink.Write(filepath.Join(p.dir, entry.Name), entry, plaintext); err != nil {
		return fmt.Errorf("generation: placing %q: %w", name, err)
	}
	p.metadata.Files[name] = entry.Name
	return nil
}

// Seal writes the generation's metadata. No more secrets can be placed
// afterwards.
func (p *Pending) Seal() error {
	if p.finished {
		return ErrFinished
	}
	data, err := codec.Marshal(p.metadata)
	if err != nil {
		return fmt.Errorf("generation: encoding metadata: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(p.dir, metadataFile), data, 0o644); err != nil {
		return fmt.Errorf("generation: %w", err)
	}
	p.sealed = true
	return nil
}

// Generation returns the pending generation as it will look once
// committed.
func (p *Pending) Generation() Generation {
	return Generation{Metadata: p.metadata, Dir: p.dir}
}

// Commit makes the pending generation current by renaming a fresh
// symlink over the current marker.
func (s *Store) Commit(p *Pending) error {
	if p.finished {
		return ErrFinished
	}
	if !p.sealed {
		return ErrNotSealed
	}

	target := filepath.Join(generationsDir, strconv.FormatUint(p.metadata.Sequence, 10))
	temporaryLink := filepath.Join(s.root, currentLink+".tmp")
	os.Remove(temporaryLink)
	if err := os.Symlink(target, temporaryLink); err != nil {
		return fmt.Errorf("generation: creating marker: %w", err)
	}
	if err := os.Rename(temporaryLink, filepath.Join(s.root, currentLink)); err != nil {
		os.Remove(temporaryLink)
		return fmt.Errorf("generation: replacing marker: %w", err)
	}
	if err := syncDirectory(s.root); err != nil {
		return fmt.Errorf("generation: %w", err)
	}

	p.finished = true
	s.logger.Info("generation committed", "sequence", p.metadata.Sequence, "store_path", p.metadata.StorePath)
	return nil
}

// Rollback deletes the pending generation. The current generation is
// not touched. Rolling back twice is a no-op.
func (s *Store) Rollback(p *Pending) error {
	if p.finished {
		return nil
	}
	if err := os.RemoveAll(p.dir); err != nil {
		return fmt.Errorf("generation: removing %s: %w", p.dir, err)
	}
	p.finished = true
	s.logger.Info("generation rolled back", "sequence", p.metadata.Sequence, "store_path", p.metadata.StorePath)
	return nil
}

// resume reopens a sealed pending generation left behind by a crash.
func (s *Store) resume(sequence uint64) (*Pending, error) {
	dir := s.dirFor(sequence)
	metadata, err := readMetadata(dir)
	if err != nil {
		return nil, err
	}
	return &Pending{store: s, dir: dir, metadata: metadata, sealed: true}, nil
}

// GC removes every generation directory other than the current one.
// Without a current generation nothing is removed.
func (s *Store) GC() error {
	current, ok, err := s.currentSequence()
	if err != nil || !ok {
		return err
	}
	sequences, err := s.sequences()
	if err != nil {
		return err
	}
	var errs []error
	for _, sequence := range sequences {
		if sequence == current {
			continue
		}
		if err := os.RemoveAll(s.dirFor(sequence)); err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Debug("generation removed", "sequence", sequence)
	}
	return errors.Join(errs...)
}
