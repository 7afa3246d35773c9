// Package app wires the engine together for one project: it configures the
// logger, loads llmgrid.yaml, opens the store, registers providers and
// search backends, and exposes the operations the CLI runs (dataset
// registration, listings and app runs). It is decoupled from any specific
// entrypoint like a CLI or server.
package app
