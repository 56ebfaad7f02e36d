// Package orchestrator runs a graph of models.
//
// Load resolves the graph and creates every transport and relay, so that
// configuration errors surface before anything is launched. Start brings up
// the relays and then the models in dependency order, injecting each model's
// queue addresses as environment variables. Wait supervises the run: when a
// model exits, the relays that depend on it are drained (or terminated once
// any model has failed) and RPC clients sign off from their servers.
//
// Interrupts come from any channel; Signals adapts SIGINT and SIGTERM. The
// first interrupt prints the status table and a second one within the grace
// window stops everything.
package orchestrator
