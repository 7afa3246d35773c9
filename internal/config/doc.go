// Package config loads the project configuration file (llmgrid.yaml): the
// store backend, the LLM providers and search backends to register, run
// defaults and the optional event sink.
//
// Loading is strict: unknown keys are rejected and the result is checked
// with struct tags before anything is opened.
package config
