// Package tasks runs the per-subscriber playback pollers.
//
// # Poller
//
// A [Poller] run moves through the states [Bootstrapping], [Polling] and [Refreshing]
// and ends in [Stopped]:
//
//  1. Load the subscriber's token record. A failed load emits one error event and stops.
//  2. When the access token expires within the refresh margin, refresh and persist it.
//     A failed refresh or persist emits an error event and the loop goes on with the token it has.
//  3. Fetch the player state and emit a playback, idle or error event.
//  4. Sleep for the delay chosen by the outcome. See [NextDelay].
//
// Emitting and sleeping both give way to context cancellation, so a closed client
// connection stops the loop without another upstream call. The event channel is closed on exit.
//
// # Supervisor
//
// The [Supervisor] owns the running pollers. [Supervisor.Subscribe] starts one per
// subscription and [Supervisor.Shutdown] cancels and drains them all.
package tasks
