// Package protocol defines the wire messages exchanged between the server
// and viewers.
//
// Inbound JSON is decoded once at the transport boundary into a closed
// tagged union (Kind plus typed fields); outbound messages are typed structs
// marshaled by the session writer.
package protocol
