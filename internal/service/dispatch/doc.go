// Package dispatch implements the message delivery orchestration.
//
// The service layer owns the send path: recipient validation, content
// resolution (direct or template-rendered), channel selection, the message
// state machine transitions around a delivery attempt, and the retry
// decisions after a failure. It depends on repository interfaces defined in
// this package and on the channel adapter capability; it should never import
// from api/.
//
// Repository implementations live in repository/postgres/.
package dispatch
