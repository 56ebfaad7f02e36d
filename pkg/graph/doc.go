// Package graph loads and resolves the declarative description of a run:
// which models exist, how their inputs and outputs are bound, which models
// are RPC servers and who calls them.
//
// A graph is read from YAML or JSON (Load), checked for configuration errors
// (Validate), and resolved into a Plan listing every relay to create, the
// model start order and the environment bindings each model receives.
package graph
