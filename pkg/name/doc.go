// Package name derives stable, engine-legal service names. Usernames may
// contain anything; the engine only accepts [A-Za-z0-9-], and an illegal name
// is rejected or silently truncated. Escape maps arbitrary input into that
// alphabet injectively so two users can never collide on a service name, and
// Deriver expands the configurable naming template on top of it.
package name
