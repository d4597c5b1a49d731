package ui

import "embed"

// Dist embeds the console page served at / and /roles.
//
//go:embed all:dist
var Dist embed.FS
