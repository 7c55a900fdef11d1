// Package dispatch routes sync messages to task operations.
//
// Every inbound text frame carries an envelope {type, data, requestId?}.
// The Router decodes it, runs the operation against the task store and:
//   - replies to the sender with the correlated result (requestId echoed)
//   - then broadcasts a sync_notification for every change it made
//
// Failures never reach other clients. They are classified into a Kind and
// sent back as {type:"error", data:{code, message, requestId?}}:
//
//	VALIDATION_ERROR  bad input, temporary or malformed id, unknown category
//	NOT_FOUND         the referenced task does not exist
//	PROCESS_ERROR     unparseable JSON or unknown message type
//	STORE_ERROR       the store failed
package dispatch
