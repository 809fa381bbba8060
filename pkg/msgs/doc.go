// Package msgs defines the messages exchanged over an fx link.
//
// Every frame on the wire decodes into exactly one Message: a Request sent by
// the master, or one of Ack, Nak, NakWithError and Response sent back by the
// peer (the master also sends Ack/Nak to close a read). All messages are
// plain values and compare with ==.
package msgs
