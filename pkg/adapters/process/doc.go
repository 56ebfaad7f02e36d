// Package process wraps models so the orchestrator can start, watch and stop them.
//
// Exec runs an operating-system process and Func runs a Go function in the
// current process. Both implement ports.Model: bindings are injected with
// SetEnv before Start, and Terminate stops the model idempotently.
package process
