/*
Package chunked carries messages of any size over transports limited to small fixed frames.

A message travels as one frame holding its length in decimal ASCII, followed by the
payload cut into frames of at most MaxFrameSize bytes:

	"177" | 32 bytes | 32 bytes | 32 bytes | 32 bytes | 32 bytes | 17 bytes

The receiver reads the length frame, then concatenates frames until the declared
length is reached or its retry budget (ceil(length/max)+5 reads by default) runs out.
A Driver is itself a ports.Communicator with no frame limit, so relays can use it
transparently in place of the bounded endpoint it wraps.

Several drivers may write to one address. When the endpoint implements
ports.BatchSender, each message is written as a single batch, so the frames of
concurrent writers never interleave.
*/
package chunked
