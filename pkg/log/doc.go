// Package log configures the global zerolog logger and provides child-logger
// constructors carrying the standard hubfleet fields (component, user,
// service). Init must be called once at process startup before any package
// logs; the zero-value Logger writes nowhere.
package log
