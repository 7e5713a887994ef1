// Package server exposes transfers over HTTP and handles OAuth loopback callbacks for the CLI.
//
// # Transfer API
//
// [Server] is a chi router over a [session.Manager] and a [tasks.Engine]:
//
//	GET    /api/health
//	GET    /api/transfers               snapshots of live sessions
//	POST   /api/transfers               start a transfer from a [tasks.Selection]; 202 with the id
//	GET    /api/transfers/{id}          progress snapshot
//	DELETE /api/transfers/{id}          request cancellation
//	GET    /api/transfers/{id}/events   server-sent progress events
//	GET    /api/transfers/{id}/report   failure report download (?format=yaml)
//	GET    /api/transfers/{id}/guide    migration guide (?format=yaml|txt)
//
// A second transfer for the same user and destination is rejected with 409 while the first runs.
// Errors are JSON bodies of the form {"error": "..."} with the status chosen from the shared error
// taxonomy.
//
// Finished sessions are swept after their retention period by [Server.Serve].
//
// # OAuth Callback Handler
//
// [OAuthHandler] completes an [auth.PKCEFlow]: the state parameter and code exchange are checked by
// the flow and the result is sent once through a channel. Later callbacks are rejected.
// [CallbackRouter] mounts it at /callback for the temporary server started by "crate auth login".
package server
