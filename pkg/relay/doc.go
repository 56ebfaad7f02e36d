/*
Package relay implements the Relay Engine: a loop that reads one Communicator and
forwards every message, optionally transformed, to another.

An Engine cycles through started, receiving, waiting, received, processing, processed,
sending and sent once per message, and ends in closed. Messages are forwarded in the
order they were received. The end-of-stream sentinel is translated to the output's
sentinel, forwarded once, and ends the loop.

Shutdown comes in two flavors: GracefulStop drains whatever is waiting on the input,
Terminate closes both endpoints at once and may be called any number of times.
*/
package relay
