/*
Package ports defines the contracts the relay core requires from its collaborators.

# Key Interfaces

  - Communicator: one end of a bounded or unbounded message channel.
  - Transport: a backend (memory, Redis, files) able to open Communicators by address.
  - DistributedLocker: guards an address so only one reader consumes it.
  - Model: a process or in-process function the orchestrator starts and watches.
  - Openable, Relayable, Chunked, Correlatable: small capability sets implemented by drivers.

The Recv contract is shared by every implementation: an empty message with a nil
error means "nothing right now", an error means the channel will never yield again.
*/
package ports
