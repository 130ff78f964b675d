// Package api embeds the gateway's OpenAPI document.
package api

import _ "embed"

// OpenAPI is the OpenAPI 3 description of the gateway's HTTP surface
//
//go:embed openapi.yaml
var OpenAPI []byte
