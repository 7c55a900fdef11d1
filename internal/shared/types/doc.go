// Package types provides shared wire structures for the TodoSync backend.
//
// These types sit between the WebSocket transport and the message router so
// neither has to import the other.
//
// Core Types:
//   - Request: Inbound envelope {type, data, requestId?}
//   - Envelope: Outbound envelope {type, data}
//   - SyncNotification: Change fan-out payload {action, task}
//   - ErrorBody: Data of an "error" envelope {code, message}
//
// Example Usage:
//
//	env := types.NewSyncNotification(types.ActionCreate, task)
//	broadcaster.Broadcast(env)
package types
