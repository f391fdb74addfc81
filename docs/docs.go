// Package docs registers the OpenAPI document served under /swagger.
// Regenerate with: swag init -g cmd/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/v1/heater/state": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Live controller snapshot: temperature, thresholds, heater and latch flags, supervisor phase and the last pressure value.",
                "produces": ["application/json"],
                "tags": ["heater"],
                "summary": "Get heater state",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.HeaterState"}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "500": {"description": "Internal Server Error", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/v1/logs": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Filter logs by date (RFC3339, 'YYYY-MM-DD HH:MM:SS', or 'YYYY-MM-DD'). If 'to' is date-only, it is treated as end-of-day inclusive.",
                "produces": ["application/json"],
                "tags": ["logs"],
                "summary": "List controller events",
                "parameters": [
                    {"type": "string", "example": "2025-08-01", "description": "Start of range", "name": "from", "in": "query"},
                    {"type": "string", "example": "2025-08-31", "description": "End of range. Date-only treated as end of day.", "name": "to", "in": "query"},
                    {
                        "enum": ["BOOT", "CONNECTED", "HEATER_START", "HEATER_STOP", "RECYCLE", "SAFETY_LATCH", "ACTUATOR_ERROR", "REBOOT"],
                        "type": "string",
                        "description": "Event type",
                        "name": "type",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.LogsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "500": {"description": "Internal Server Error", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/auth/sign-in": {
            "post": {
                "description": "Exchange operator credentials for a bearer token.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Sign in",
                "parameters": [
                    {"description": "Credentials", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SignInRequest"}}
                ],
                "responses": {
                    "200": {"description": "token", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}
                }
            }
        },
        "/ws": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Upgrades to a WebSocket. Sends the controller state first, then a state frame whenever the heater flags, phase, thresholds, temperature or pressure change, and a single safety_latch frame when the latch trips. ?all=true sends every sample.",
                "tags": ["heater"],
                "summary": "State stream",
                "parameters": [
                    {"type": "string", "description": "Sampling interval as a Go duration (100ms..10s)", "name": "interval", "in": "query"},
                    {"type": "boolean", "description": "Send every sample, not only changes", "name": "all", "in": "query"},
                    {"type": "string", "description": "Operator token when no Authorization header can be set", "name": "access_token", "in": "query"}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        }
    },
    "definitions": {
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "version": {"$ref": "#/definitions/version.Info"},
                "hostname": {"type": "string"},
                "uptime_seconds": {"type": "number"},
                "host_uptime_seconds": {"type": "integer"}
            }
        },
        "handlers.LogsResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "by_type": {"type": "object", "additionalProperties": {"type": "integer"}},
                "events": {"type": "array", "items": {"$ref": "#/definitions/models.HeaterEvent"}}
            }
        },
        "handlers.SignInRequest": {
            "type": "object",
            "properties": {
                "username": {"type": "string", "example": "operator"},
                "password": {"type": "string", "example": "secret"}
            }
        },
        "models.HeaterEvent": {
            "type": "object",
            "properties": {
                "event_id": {"type": "string"},
                "occurred_at": {"type": "string"},
                "type": {"type": "string"},
                "description": {"type": "string"},
                "metadata": {}
            }
        },
        "models.HeaterState": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "phase": {"type": "string"},
                "current_temp": {"type": "number"},
                "upper_temp": {"type": "number"},
                "lower_temp": {"type": "number"},
                "heater_on": {"type": "boolean"},
                "heater_started_at": {"type": "string"},
                "heater_started_ago": {"type": "string"},
                "cooling_down": {"type": "boolean"},
                "temperature_at_start": {"type": "number"},
                "safety_latched": {"type": "boolean"},
                "pressure": {"type": "number"},
                "pressure_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "version.Info": {
            "type": "object",
            "properties": {
                "version": {"type": "string"},
                "commit": {"type": "string"},
                "build_time": {"type": "string"},
                "go_version": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Water Heater Controller API",
	Description:      "Read-only operator API for the water heater and circulation pump controller.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
