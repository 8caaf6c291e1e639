package web

import "embed"

// Templates embeds HTML templates.
//
//go:embed templates/pages/*.html
var Templates embed.FS

// Mail embeds plain-text email templates.
//
//go:embed mail/*.txt
var Mail embed.FS
