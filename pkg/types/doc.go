/*
Package types defines the shared data model for hubfleet.

Two families of types live here. The engine wire types (Service, ServiceSpec,
TaskTemplate, ContainerSpec, Resources, EndpointSpec, Mount, Task) mirror the
swarm engine's JSON API and are what pkg/engine marshals on the wire. The
spawner-side types (TaskSnapshot, Record) are hubfleet's own: a TaskSnapshot
is the ephemeral diagnostic view produced by one liveness poll, and a Record
is the single durable fact a session keeps across hub restarts — the engine
service id, plus the api token recovered from a reused service.

Resource values use pointer fields so that an explicitly configured zero limit
survives the trip to the engine; a nil pointer means the limit was never set.
*/
package types
