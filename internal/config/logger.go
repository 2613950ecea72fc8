package config

import (
	"log"
	"os"
)

// NewLogger returns the *log.Logger that bootstrap and internal/server log
// through (internal/aof logs with the standard log package), per
// SPEC_FULL.md §3 ("no structured-logging library is introduced — ...
// a package-level *log.Logger injected at bootstrap"). Matches the plain
// log.Printf/log.Fatal idiom every logging call site in the corpus uses
// (teacher's cmd/bench/main.go, examples/http_metrics/main.go).
func NewLogger(prefix string) *log.Logger {
	return log.New(os.Stderr, prefix, log.LstdFlags)
}
