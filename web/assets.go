// Package web holds the browse server's templates and static files.
package web

import "embed"

//go:embed templates static
var Assets embed.FS
