package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

// uiMode selects how progress is rendered.
type uiMode string

const (
	uiModeAuto  uiMode = "auto"
	uiModePlain uiMode = "plain"
	uiModeTUI   uiMode = "tui"
)

// readUIMode validates the --ui flag value.
func readUIMode(value string) (uiMode, error) {
	switch uiMode(value) {
	case uiModeAuto, uiModePlain, uiModeTUI:
		return uiMode(value), nil
	default:
		return uiModeAuto, fmt.Errorf("unsupported ui mode: %s (supported: auto, plain, tui)", value)
	}
}

// shouldUseTUI decides whether the interactive progress view runs: only
// on a terminal, and only for more than one input file in auto mode.
func shouldUseTUI(mode uiMode, files int) bool {
	switch mode {
	case uiModeTUI:
		return isTerminal(os.Stdout)
	case uiModePlain:
		return false
	default:
		return files > 1 && isTerminal(os.Stdout)
	}
}

// applyColorMode resolves the --color flag against TTY detection.
// Returns whether output is colorised.
func applyColorMode(value string) bool {
	switch value {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		color.NoColor = !isTerminal(os.Stdout)
	}
	return !color.NoColor
}
