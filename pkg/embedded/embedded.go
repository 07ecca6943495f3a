// Package embedded provides embedded static assets for the application.
package embedded

import (
	"embed"
)

// Files contains all files embedded in the Go binary:
//   - fallback/opportunities.json - last-known-good scan dataset served by
//     the static fallback tier when both the cache and the live engine fail
//
//go:embed fallback
var Files embed.FS
