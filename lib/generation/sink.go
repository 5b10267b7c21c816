// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package generation

import (
	"fmt"
	"os"
	"os/user"
	"strconv"

	"github.com/yeet-rs/yeet/lib/manifest"
	"github.com/yeet-rs/yeet/lib/secret"
)

// Sink writes one decrypted secret to path inside a pending generation.
type Sink interface {
	Write(path string, entry manifest.Entry, plaintext *secret.Buffer) error
}

// FileSink writes regular files with the entry's mode and, when Chown
// is set, its owner and group.
type FileSink struct {
	Chown bool
}

func (s FileSink) Write(path string, entry manifest.Entry, plaintext *secret.Buffer) error {
	mode, err := entry.FileMode()
	if err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := plaintext.WriteTo(file); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}

	if s.Chown {
		uid, gid, err := resolveOwnership(entry.Owner, entry.Group)
		if err != nil {
			return err
		}
		if err := os.Chown(path, uid, gid); err != nil {
			return fmt.Errorf("chown %s: %w", path, err)
		}
	}
	// Chmod after chown: chown clears setuid and setgid bits.
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

// resolveOwnership accepts user and group names or numeric ids.
func resolveOwnership(owner, group string) (int, int, error) {
	uid, err := strconv.Atoi(owner)
	if err != nil {
		account, lookupErr := user.Lookup(owner)
		if lookupErr != nil {
			return 0, 0, fmt.Errorf("looking up owner %q: %w", owner, lookupErr)
		}
		uid, _ = strconv.Atoi(account.Uid)
	}
	gid, err := strconv.Atoi(group)
	if err != nil {
		found, lookupErr := user.LookupGroup(group)
		if lookupErr != nil {
			return 0, 0, fmt.Errorf("looking up group %q: %w", group, lookupErr)
		}
		gid, _ = strconv.Atoi(found.Gid)
	}
	return uid, gid, nil
}
