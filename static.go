package main

import _ "embed"

// indexHTML is the embedded main application HTML template.
//go:embed web/index.html
var indexHTML string

// loginHTML is the embedded login page HTML template.
//go:embed web/login.html
var loginHTML string

// faviconSVG is the embedded favicon SVG template.
//go:embed web/favicon.svg
var faviconSVG string
