package web

import "embed"

// FS holds the upload and replay page.
//
//go:embed *.html *.css *.js
var FS embed.FS
