/*
Package volume translates the declarative host-to-container volume maps from
configuration into the engine's mount-spec list.

Two parallel maps feed it: the generic map (entries default to read-write)
and the read-only map (entries default to read-only), sharing one host-path
key space. The read-only map is applied last, so a path declared in both ends
up read-only. Host and container paths both pass through a pluggable
NamingStrategy before use, which is how {username} substitution happens.

Build is deterministic: identical maps produce a byte-identical, target-sorted
mount list, which keeps service-spec diffs and tests reproducible.
*/
package volume
