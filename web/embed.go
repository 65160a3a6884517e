package web

import "embed"

// Templates embeds the HTML templates rendered into PDF documents.
//
//go:embed templates/*.html
var Templates embed.FS
