// Package docs is generated by swaggo/swag from the handler annotations.
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
		"/auth/register": {
			"post": {
				"tags": [
					"auth"
				],
				"summary": "Register a new user",
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Account details",
						"name": "body",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/handler.registerRequest"
						}
					}
				],
				"responses": {
					"201": {
						"description": "Created",
						"schema": {
							"$ref": "#/definitions/handler.registerResponse"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/handler.errorResponse"
						}
					},
					"409": {
						"description": "Conflict",
						"schema": {
							"$ref": "#/definitions/handler.errorResponse"
						}
					},
					"422": {
						"description": "Unprocessable Entity",
						"schema": {
							"$ref": "#/definitions/handler.errorResponse"
						}
					}
				}
			}
		},
		"/auth/login": {
			"post": {
				"tags": [
					"auth"
				],
				"summary": "Login",
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Credentials",
						"name": "body",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/handler.loginRequest"
						}
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/handler.sessionResponse"
						}
					},
					"400": {
						"description": "Bad Request",
						"schema": {
							"$ref": "#/definitions/handler.errorResponse"
						}
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/handler.errorResponse"
						}
					}
				}
			}
		},
		"/auth/logout": {
			"post": {
				"tags": [
					"auth"
				],
				"summary": "Logout",
				"responses": {
					"204": {
						"description": "No Content"
					}
				}
			}
		},
		"/auth/magic-link": {
			"post": {
				"tags": [
					"auth"
				],
				"summary": "Request a magic sign-in link",
				"consumes": [
					"application/json"
				],
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"description": "Recipient",
						"name": "body",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/handler.magicLinkRequest"
						}
					}
				],
				"responses": {
					"202": {
						"description": "Accepted",
						"schema": {
							"$ref": "#/definitions/handler.statusResponse"
						}
					},
					"422": {
						"description": "Unprocessable Entity",
						"schema": {
							"$ref": "#/definitions/handler.errorResponse"
						}
					},
					"503": {
						"description": "Service Unavailable",
						"schema": {
							"$ref": "#/definitions/handler.errorResponse"
						}
					}
				}
			}
		},
		"/auth/magic-link/verify": {
			"get": {
				"tags": [
					"auth"
				],
				"summary": "Redeem a magic link",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "Link token",
						"name": "token",
						"in": "query",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/handler.sessionResponse"
						}
					},
					"303": {
						"description": "See Other"
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/handler.errorResponse"
						}
					}
				}
			}
		},
		"/auth/oauth/{provider}/start": {
			"get": {
				"tags": [
					"oauth"
				],
				"summary": "Start OAuth sign-in",
				"parameters": [
					{
						"type": "string",
						"description": "google or github",
						"name": "provider",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"302": {
						"description": "Found"
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/handler.errorResponse"
						}
					}
				}
			}
		},
		"/auth/oauth/{provider}/callback": {
			"get": {
				"tags": [
					"oauth"
				],
				"summary": "OAuth callback",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "google or github",
						"name": "provider",
						"in": "path",
						"required": true
					},
					{
						"type": "string",
						"description": "Authorization code",
						"name": "code",
						"in": "query",
						"required": true
					},
					{
						"type": "string",
						"description": "State echoed by the provider",
						"name": "state",
						"in": "query",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/handler.sessionResponse"
						}
					},
					"303": {
						"description": "See Other"
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/handler.errorResponse"
						}
					}
				}
			}
		},
		"/api/me": {
			"get": {
				"security": [
					{
						"SessionCookie": []
					},
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"account"
				],
				"summary": "Current user",
				"produces": [
					"application/json"
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.PublicUser"
						}
					},
					"401": {
						"description": "Unauthorized",
						"schema": {
							"$ref": "#/definitions/handler.errorResponse"
						}
					}
				}
			}
		},
		"/api/me/password": {
			"post": {
				"security": [
					{
						"SessionCookie": []
					},
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"account"
				],
				"summary": "Set password",
				"consumes": [
					"application/json"
				],
				"parameters": [
					{
						"description": "New password",
						"name": "body",
						"in": "body",
						"required": true,
						"schema": {
							"$ref": "#/definitions/handler.setPasswordRequest"
						}
					}
				],
				"responses": {
					"204": {
						"description": "No Content"
					},
					"422": {
						"description": "Unprocessable Entity",
						"schema": {
							"$ref": "#/definitions/handler.errorResponse"
						}
					}
				}
			}
		},
		"/api/me/onboarding": {
			"post": {
				"security": [
					{
						"SessionCookie": []
					},
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"account"
				],
				"summary": "Complete onboarding",
				"responses": {
					"204": {
						"description": "No Content"
					}
				}
			}
		},
		"/api/admin/users/{id}": {
			"get": {
				"security": [
					{
						"SessionCookie": []
					},
					{
						"BearerAuth": []
					}
				],
				"tags": [
					"admin"
				],
				"summary": "Look up a user",
				"produces": [
					"application/json"
				],
				"parameters": [
					{
						"type": "string",
						"description": "User id",
						"name": "id",
						"in": "path",
						"required": true
					}
				],
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/domain.PublicUser"
						}
					},
					"403": {
						"description": "Forbidden",
						"schema": {
							"$ref": "#/definitions/handler.errorResponse"
						}
					},
					"404": {
						"description": "Not Found",
						"schema": {
							"$ref": "#/definitions/handler.errorResponse"
						}
					}
				}
			}
		},
		"/health": {
			"get": {
				"tags": [
					"health"
				],
				"summary": "Liveness probe",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/handler.statusResponse"
						}
					}
				}
			}
		},
		"/health/ready": {
			"get": {
				"tags": [
					"health"
				],
				"summary": "Readiness probe",
				"responses": {
					"200": {
						"description": "OK",
						"schema": {
							"$ref": "#/definitions/handler.readinessResponse"
						}
					},
					"503": {
						"description": "Service Unavailable",
						"schema": {
							"$ref": "#/definitions/handler.readinessResponse"
						}
					}
				}
			}
		}
	},
	"definitions": {
		"domain.PublicUser": {
			"type": "object",
			"properties": {
				"email": {
					"type": "string"
				},
				"id": {
					"type": "string"
				},
				"last_login_at": {
					"type": "string"
				},
				"name": {
					"type": "string"
				},
				"role": {
					"type": "string"
				}
			}
		},
		"handler.dependencyStatus": {
			"type": "object",
			"properties": {
				"error": {
					"type": "string"
				},
				"status": {
					"type": "string"
				}
			}
		},
		"handler.errorResponse": {
			"type": "object",
			"properties": {
				"error": {
					"type": "string"
				}
			}
		},
		"handler.loginRequest": {
			"type": "object",
			"properties": {
				"email": {
					"type": "string"
				},
				"password": {
					"type": "string"
				}
			},
			"required": [
				"email",
				"password"
			]
		},
		"handler.magicLinkRequest": {
			"type": "object",
			"properties": {
				"email": {
					"type": "string",
					"maxLength": 254
				}
			},
			"required": [
				"email"
			]
		},
		"handler.readinessResponse": {
			"type": "object",
			"properties": {
				"dependencies": {
					"type": "object",
					"additionalProperties": {
						"$ref": "#/definitions/handler.dependencyStatus"
					}
				},
				"status": {
					"type": "string"
				}
			}
		},
		"handler.registerRequest": {
			"type": "object",
			"properties": {
				"email": {
					"type": "string",
					"maxLength": 254
				},
				"name": {
					"type": "string",
					"maxLength": 120
				},
				"password": {
					"type": "string",
					"maxLength": 72,
					"minLength": 8
				}
			},
			"required": [
				"email",
				"password"
			]
		},
		"handler.registerResponse": {
			"type": "object",
			"properties": {
				"user": {
					"$ref": "#/definitions/domain.PublicUser"
				}
			}
		},
		"handler.sessionResponse": {
			"type": "object",
			"properties": {
				"expires_at": {
					"type": "string"
				},
				"token": {
					"type": "string"
				},
				"user": {
					"$ref": "#/definitions/domain.PublicUser"
				}
			}
		},
		"handler.setPasswordRequest": {
			"type": "object",
			"properties": {
				"password": {
					"type": "string",
					"maxLength": 72,
					"minLength": 8
				}
			},
			"required": [
				"password"
			]
		},
		"handler.statusResponse": {
			"type": "object",
			"properties": {
				"status": {
					"type": "string"
				}
			}
		}
	},
	"securityDefinitions": {
		"BearerAuth": {
			"type": "apiKey",
			"name": "Authorization",
			"in": "header"
		},
		"SessionCookie": {
			"type": "apiKey",
			"name": "session",
			"in": "cookie"
		}
	}
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "authgate API",
	Description:      "Authentication and session guard service.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
