// Package server exposes scanning and history over a small JSON HTTP API
// built on gin.
//
// Routes:
//
//	GET    /api/health
//	POST   /api/scan
//	GET    /api/history
//	DELETE /api/history/:id
//	DELETE /api/history
//	GET    /metrics
//
// Only one server may run per data directory; Run takes an advisory lock
// before listening.
package server
