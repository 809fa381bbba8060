// Package comm runs fx link transactions over a half-duplex byte stream.
package comm

// The link is a master/slave, request-response channel (e.g. a serial port)
// without any transaction identifier. Correlation is purely temporal: at most
// one transaction is in flight at a time.
//
// Write: master ENQ(WW) -> slave ACK
// Read:  master ENQ(WR) -> slave STX(data) -> master ACK/NAK
//
// Client plays the master role and Server the slave role. Both sit on a Conn
// which frames the stream using package codec.
