/*
Package spawner is the service lifecycle reconciliation core: one Spawner per
user session ensures exactly one long-running service exists on the engine
and reconciles against the engine's authoritative state across restarts and
failures on either side.

Discovery runs through a small state machine. GetService maps an engine 404
(service removed) and 500 (node unhealthy) to "absent" and drops the
retained identifier, since continuity cannot be proven in either case; any
other engine failure surfaces unmodified. GetTask confirms the service first
and enforces the at-most-one-running-task invariant — two tasks for one name
is a consistency violation that aborts rather than guessing.

EnsureRunning is idempotent across hub restarts: absent services are created
from a specification built fresh on every attempt, present ones are reused
with the session token recovered from the running service's environment, and
a create failure retains nothing so the next attempt starts clean. The
returned endpoint is the service name plus configured port; resolution is
the overlay network's job, and callers off the overlay install an
AddressResolver instead.

Poll reports Healthy, Unhealthy (with a task snapshot), or Gone; a vanished
task is a normal session ending, not an error. Stop always clears the local
record, even if removal fails, accepting a possibly orphaned remote service
as the lesser failure mode.
*/
package spawner
