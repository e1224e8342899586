// Package fsbroker ties the broker protocol together: the dispatch table
// mapping command codes to dispatch units, and the payload buffer pool used
// by connections while a request is being decoded.
//
// Wire layering, outermost first:
//
//	comm     frame header (XDR) carrying command, request id and payload length
//	handlers versioned request envelope and per-operation fields
//	serial   primitive encodings used inside envelopes and responses
package fsbroker
