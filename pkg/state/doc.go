// Package state persists the single durable fact each session owns — the
// engine service id (plus recovered api token) — so the hub process can
// restart while user services keep running. Backed by a local bbolt file;
// records are cleared when a service is confirmed stopped.
package state
