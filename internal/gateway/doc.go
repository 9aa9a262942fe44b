// Package gateway is the HTTP front of the flow endpoint.
//
// Routes, relative to the configured base path:
//
//	POST /          encrypted flow data exchange
//	POST /webhook   inbound message notifications
//	GET  /webhook   subscription verification
//	GET  /          banner
//
// plus GET /healthz and the metrics path at the root.
//
// The data exchange path verifies the request signature, decrypts the
// envelope, dispatches the payload and returns the encrypted response as
// base64 text. Failures are a status code with an empty body: the configured
// rejection status for a bad signature, the cipher's status hint for
// cryptographic failures (421 by default) and 500 for everything else.
//
// The notification path always answers 200 and flushes it before any
// storage or outbound messaging work. Verified messages are processed by
// the worker pool; unverified ones are dropped.
package gateway
