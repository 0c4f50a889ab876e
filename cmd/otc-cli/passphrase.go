package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// passphraseSource resolves the keystore passphrase from the environment or
// by prompting on the terminal, caching the first successful result.
type passphraseSource struct {
	envVar string

	once  sync.Once
	value string
	err   error
}

var keystorePassphrase = &passphraseSource{envVar: envPassphrase}

func (s *passphraseSource) get() (string, error) {
	s.once.Do(func() {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				s.err = fmt.Errorf("%s is set but empty", s.envVar)
				return
			}
			s.value = value
			return
		}
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			s.err = fmt.Errorf("keystore passphrase required; set %s or run interactively", s.envVar)
			return
		}

		fmt.Fprint(os.Stderr, "Enter keystore passphrase: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			s.err = fmt.Errorf("read passphrase: %w", err)
			return
		}
		if strings.TrimSpace(string(raw)) == "" {
			s.err = errors.New("keystore passphrase cannot be empty")
			return
		}
		s.value = string(raw)
	})
	return s.value, s.err
}
