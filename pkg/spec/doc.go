/*
Package spec builds the engine's hierarchical service specification from the
flat option bag the spawner assembles.

The engine wants four nested objects (container spec, resource spec, task
template, endpoint spec); operators and the spawner think in one flat
key-value surface. Build partitions the flat keys by static set membership,
converts values into the typed wire structs, and collects every key claimed
by no slice into Result.Unused so nothing is dropped silently. Unknown keys
are reported, never rejected.

Value conversion fails fast: a malformed option is a configuration error
surfaced before any engine call, so a bad config can never leave a
half-created service behind.
*/
package spec
