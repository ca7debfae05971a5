/*
Package config declares and loads the flat configuration surface the spawner
core consumes: image, naming template, network, volume maps, resource limits,
engine connection settings.

Deprecated field names are mapped to their current ones in a single pass at
load time, returning a warning list for the operator log; there is no live
field interception. Validation fails fast so a bad config never reaches the
engine.
*/
package config
