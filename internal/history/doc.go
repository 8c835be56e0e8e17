// Package history persists saved license plates.
//
// The whole history is one JSON array, newest first, stored under the fixed
// key LICENSE_PLATE_HISTORY in a small SQLite key-value table. Every mutation
// is a read-modify-write of that array, serialized with an in-process mutex
// and an advisory file lock so concurrent CLI invocations and the HTTP server
// cannot lose each other's writes.
package history
