package web

import (
	"embed"
	"io/fs"
)

// pageFiles is the operator page: command buttons, telemetry poll and
// the log stream.
//
//go:embed static/index.html
var pageFiles embed.FS

// pageFS returns the page files rooted at static/.
func pageFS() fs.FS {
	sub, err := fs.Sub(pageFiles, "static")
	if err != nil {
		panic(err) // static/ is embedded above
	}
	return sub
}
