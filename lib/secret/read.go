// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// MaxSize bounds secrets read from files or stdin.
const MaxSize = 1024 * 1024

// ReadFromPath reads a secret from path, or from stdin when path is
// "-". The content is kept byte-for-byte: secrets such as netrc files
// are whole files, so nothing is trimmed.
func ReadFromPath(path string) (*Buffer, error) {
	if path == "-" {
		buffer, err := NewFromReader(os.Stdin, MaxSize)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return buffer, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buffer, err := NewFromReader(file, MaxSize)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return buffer, nil
}

// ReadFromTerminal prompts on stderr and reads one line from the
// terminal on fd without echoing it. Returns an error when fd is not a
// terminal.
func ReadFromTerminal(fd int, prompt string) (*Buffer, error) {
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("secret: fd %d is not a terminal", fd)
	}
	fmt.Fprint(os.Stderr, prompt)
	line, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		Zero(line)
		return nil, fmt.Errorf("secret: reading from terminal: %w", err)
	}
	if len(line) == 0 {
		return nil, fmt.Errorf("secret: empty input")
	}
	return NewFromBytes(line)
}
