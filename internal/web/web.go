// Package web embeds the static catalog page served at the site root.
package web

import (
	"embed"
	"io/fs"
)

//go:embed dist
var assets embed.FS

// Dist returns the page assets rooted at dist/.
func Dist() (fs.FS, error) {
	return fs.Sub(assets, "dist")
}
