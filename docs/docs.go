// Package docs registers the OpenAPI description served under /swagger/.
package docs

import (
	_ "embed"

	"github.com/swaggo/swag"
)

//go:embed swagger.json
var docTemplate string

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Fractal governance API",
	Description:      "Fractal deliberation: groups, proposals, votes, representatives, rounds.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
