// Package model is the model side of a conduit graph.
//
// The orchestrator injects one variable per queue (CONDUIT_IN_<CHANNEL>,
// CONDUIT_OUT_<CHANNEL>, CONDUIT_CALL_<SERVER>, CONDUIT_REPLY_<SERVER>,
// CONDUIT_RPC_IN, CONDUIT_RPC_OUT), a _TRANSPORT companion naming the
// transport, and CONDUIT_TRANSPORT_<NAME>_* variables describing each
// transport. Conn turns those into open endpoints:
//
//	conn := model.FromEnviron()
//	defer conn.Close()
//	in, err := conn.Input(ctx, "words")
//	...
//	for {
//		msg, err := conn.Next(ctx, in)
//		if err != nil || ports.IsEOF(in, msg) {
//			break
//		}
//		...
//	}
//
// Large messages are chunked transparently on transports with a frame limit.
package model
