package web

import "embed"

// staticFiles is the control page: index.html plus its script and stylesheet.
//
//go:embed static/*
var staticFiles embed.FS
