// Package ws provides the websocket transport the connection registry runs on.
//
// The package implements:
//   - Server: upgrades HTTP requests and owns every websocket client
//   - Client: one websocket connection with its read and write pumps
//   - Namespace: a logical channel clients connect sockets to
//   - Socket: a client's presence in one namespace, with event listeners
//   - Adapter: room membership for a namespace
//
// Frames are JSON text messages of the form
//
//	{"type":"event","nsp":"/chat","event":"message","data":...,"ackId":"..."}
//
// where type is one of connect, disconnect, event, ack or error. Every client
// is connected to the "/" namespace on upgrade and sends a connect packet to
// join others.
package ws
