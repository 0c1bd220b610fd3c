package main

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects which half of the weekly cycle a run performs.
type Mode string

// Run modes.
const (
	ModeEntry      Mode = "entry"
	ModeExit       Mode = "exit"
	ModeDiagnostic Mode = "diagnostic"
)

// resolveMode picks the mode from the UTC weekday unless override is set.
func resolveMode(override string, now time.Time, entry, exit time.Weekday) (Mode, error) {
	if override = strings.ToLower(strings.TrimSpace(override)); override != "" {
		switch m := Mode(override); m {
		case ModeEntry, ModeExit, ModeDiagnostic:
			return m, nil
		default:
			return "", fmt.Errorf("unknown %s %q (want entry, exit or diagnostic)", EnvRunMode, override)
		}
	}
	switch now.UTC().Weekday() {
	case entry:
		return ModeEntry, nil
	case exit:
		return ModeExit, nil
	default:
		return ModeDiagnostic, nil
	}
}
