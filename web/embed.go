// Package web holds the embedded browser client served by the API.
package web

import "embed"

//go:embed index.html view.html history.html app.js history.js style.css
var Assets embed.FS
