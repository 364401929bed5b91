// Package docs holds the OpenAPI document served at /swagger/doc.json.
// Regenerate with: swag init -g cmd/sercha-auth/main.go
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "Sercha OSS",
            "url": "https://github.com/custodia-labs/sercha-auth/issues"
        },
        "license": {
            "name": "Apache 2.0",
            "url": "http://www.apache.org/licenses/LICENSE-2.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.StatusResponse"}}
                }
            }
        },
        "/ready": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.StatusResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/http.StatusResponse"}}
                }
            }
        },
        "/version": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Get API version",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.VersionResponse"}}
                }
            }
        },
        "/session/signup": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Session"],
                "summary": "Sign up",
                "parameters": [
                    {"description": "Credentials", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.Credentials"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.AuthResponse"}},
                    "400": {"description": "Invalid request body or password too long", "schema": {"$ref": "#/definitions/http.MessageResponse"}},
                    "401": {"description": "Missing field or username taken", "schema": {"$ref": "#/definitions/http.MessageResponse"}},
                    "503": {"description": "Store unavailable", "schema": {"$ref": "#/definitions/http.MessageResponse"}}
                }
            }
        },
        "/session/login": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Session"],
                "summary": "Current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.WhoamiResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.MessageResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Session"],
                "summary": "Log in",
                "parameters": [
                    {"description": "Credentials", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.Credentials"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.AuthResponse"}},
                    "400": {"description": "Invalid request body", "schema": {"$ref": "#/definitions/http.MessageResponse"}},
                    "401": {"description": "Missing field, unknown user or wrong password", "schema": {"$ref": "#/definitions/http.MessageResponse"}},
                    "503": {"description": "Store unavailable", "schema": {"$ref": "#/definitions/http.MessageResponse"}}
                }
            }
        },
        "/session/secure": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Session"],
                "summary": "Protected resource",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.MessageResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.MessageResponse"}}
                }
            }
        },
        "/session/logout": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Session"],
                "summary": "Log out",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.MessageResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.MessageResponse"}}
                }
            }
        },
        "/jwt/signup": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["JWT"],
                "summary": "Sign up (token)",
                "parameters": [
                    {"description": "Credentials", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.Credentials"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.AuthResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.MessageResponse"}}
                }
            }
        },
        "/jwt/login": {
            "get": {
                "produces": ["application/json"],
                "tags": ["JWT"],
                "summary": "Current user",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.WhoamiResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.MessageResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["JWT"],
                "summary": "Log in (token)",
                "parameters": [
                    {"description": "Credentials", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.Credentials"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.AuthResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.MessageResponse"}}
                }
            }
        },
        "/jwt/secure": {
            "post": {
                "produces": ["application/json"],
                "tags": ["JWT"],
                "summary": "Protected resource (token)",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.MessageResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.MessageResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.Credentials": {
            "type": "object",
            "properties": {
                "username": {"type": "string", "example": "foo"},
                "password": {"type": "string", "example": "bar"}
            }
        },
        "http.AuthResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "Logged in as foo."},
                "token": {"type": "string"}
            }
        },
        "http.MessageResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "Unauthorized!"}
            }
        },
        "http.StatusResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "ok"},
                "checks": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "http.UserSummary": {
            "type": "object",
            "properties": {
                "username": {"type": "string", "example": "foo"}
            }
        },
        "http.VersionResponse": {
            "type": "object",
            "properties": {
                "version": {"type": "string", "example": "1.0.0"}
            }
        },
        "http.WhoamiResponse": {
            "type": "object",
            "properties": {
                "user": {"$ref": "#/definitions/http.UserSummary"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "JWT Bearer token. Format: \"Bearer {token}\"",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:3001",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Sercha Auth API",
	Description:      "Username and password authentication with cookie sessions and bearer tokens over pluggable credential stores.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
