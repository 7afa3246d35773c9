// Package cli is the llmgrid command tree. It parses command-line
// arguments, validates user input, and handles process-level concerns like
// exit codes; the work itself is done by package app.
package cli
