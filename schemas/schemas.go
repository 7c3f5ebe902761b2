// Package schemas embeds the JSON schemas of the generation backend's responses.
package schemas

import "embed"

// FS holds every *.schema.json file of this directory.
//
//go:embed *.schema.json
var FS embed.FS
