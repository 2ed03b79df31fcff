// Package services is the client side of the docdash HTTP API.
//
// # Dashboard Interface
//
// [Dashboard] lists every operation the CLI and the terminal UI perform against a running server, so both
// can be tested against an in-memory fake.
//
// # HTTP Implementation
//
// [APIService] implements Dashboard with a resty client bound to the server's base URL. Idempotent GET
// requests are retried on gateway errors; task creation and cancellation are never retried.
//
// # Error Handling
//
// Non-2xx answers become an [APIError], which unwraps to the shared sentinels:
//   - [shared.ErrTaskNotFound] : 404
//   - [shared.ErrTaskTerminal] : 409, the task already finished
//   - [shared.ErrInvalidInput] : 400
//   - [shared.ErrServiceUnavailable] : 503
//   - [shared.ErrAPIRequest] : anything else, and transport failures
package services
