// Package ui provides terminal UI components for the keelhaul CLI.
//
// This package uses Bubble Tea and Lipgloss for terminal output. Most
// commands follow a "render and exit" pattern through the Printer (command
// banner, detail rows, success or error box); the one fully interactive
// component is the live console monitor, a scrollback viewport fed by the
// console package's traffic events.
//
// Operations gated behind opt-in flags additionally go through
// ConfirmDangerousOperation, which requires the operator to type an
// explicit acknowledgement before the flag takes effect.
//
// Logging is controlled via the KEELHAUL_LOG_LEVEL environment variable and
// goes to stderr; when unset, zap is silent so the curated UI output stays
// clean.
package ui
