// Package codec translates between the raw byte stream of an fx link and
// msgs.Message values.
//
// Every frame is a single line terminated by LF. The first byte of a line is
// a marker selecting the message kind:
//
//	STX station plc data ETX checksum   Response
//	ACK station plc                     Ack
//	NAK station plc [error]             Nak / NakWithError
//	ENQ station plc cmd wait device count [data] checksum   Request
//
// All numeric fields are fixed width upper case hex. The checksum is the 8-bit
// sum of all bytes between the marker and the checksum field.
//
// The Decoder is incremental: bytes may arrive in arbitrary chunks. A line
// exceeding the maximum length is reported once with ErrLineTooLong and then
// skipped up to the next terminator, so the decoder always resynchronizes.
package codec
