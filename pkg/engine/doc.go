/*
Package engine talks to the swarm container engine.

Client is a thin HTTP client for the engine's service and task API, speaking
JSON over a unix socket or tcp with optional mutual TLS. Connection settings
come from the ambient DOCKER_* environment, overlaid by explicit
configuration. Non-2xx responses become *APIError values carrying the status
code; IsNotFound and IsNodeUnhealthy classify the two codes the discovery
state machine treats as "absent".

Facade is the concurrency contract: every engine call in the process funnels
through one worker goroutine, so no two mutations can interleave against the
same service identity. Calls resolve through single-use futures; a caller
that abandons a future leaves the issued call to complete, which is safe
because the engine remains the source of truth. These are low-frequency
control-plane operations, so the single queue trades throughput for never
needing per-resource locks.
*/
package engine
