// Package appfs embeds files the binaries need at runtime, so a deploy is a
// single executable.
package appfs

import "embed"

//go:embed migrations
var FS embed.FS
