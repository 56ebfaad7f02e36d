// Package rpc layers request/response semantics over one-way relays.
//
// A Client sits between a model's outbox and a server's shared request channel.
// Every call it forwards is wrapped in an Envelope carrying a fresh
// response.<id> address, and a single-use response relay is spawned to carry
// the one reply from that address into the model's inbox.
//
// A Server unwraps envelopes before handing the payload to its model, and
// routes each reply the model produces to the oldest call still waiting for
// one. Replies carry no request id, so a server model that drops or reorders a
// call sends every later reply to the wrong caller. The server logs a warning
// when it routes a reply to a call older than the stale reply age while others
// are still waiting.
//
// Clients announce themselves with SignOn and leave with SignOff; when the
// last one leaves, the server forwards end-of-stream to its model. A server
// with no clients at all is released at start and gets end-of-stream at once.
package rpc
