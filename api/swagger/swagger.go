// Package swagger registers the OpenAPI document served at /docs.
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Flight Training Progression API",
        "description": "Curriculum, enrollment and training progression backend for flight schools",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http"],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Login and token lifecycle"},
        {"name": "Programs", "description": "Training program and stage management"},
        {"name": "Lessons", "description": "Lessons, exercises and the prerequisite graph"},
        {"name": "Enrollments", "description": "Enrollment lifecycle and hour requirements"},
        {"name": "Completions", "description": "Lesson attempts and grading"},
        {"name": "StageChecks", "description": "Stage check scheduling and outcomes"},
        {"name": "Progress", "description": "Progress projections"},
        {"name": "Records", "description": "Training record export"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "responses": {"200": {"description": "Token pair"}}
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {"200": {"description": "Token pair"}}
            }
        },
        "/programs": {
            "get": {
                "tags": ["Programs"],
                "summary": "List training programs",
                "responses": {"200": {"$ref": "#/responses/Envelope"}}
            },
            "post": {
                "tags": ["Programs"],
                "summary": "Create a draft program",
                "responses": {"201": {"$ref": "#/responses/Envelope"}}
            }
        },
        "/programs/{id}/publish": {
            "post": {
                "tags": ["Programs"],
                "summary": "Publish a draft program",
                "responses": {"200": {"$ref": "#/responses/Envelope"}, "409": {"description": "Unsound prerequisite graph"}}
            }
        },
        "/lessons/{id}/prerequisites": {
            "post": {
                "tags": ["Lessons"],
                "summary": "Add a prerequisite edge",
                "responses": {"204": {"description": "Edge added"}, "409": {"description": "Edge would introduce a cycle"}}
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List enrollments",
                "responses": {"200": {"$ref": "#/responses/Envelope"}}
            },
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll a student",
                "responses": {"201": {"$ref": "#/responses/Envelope"}, "409": {"description": "Duplicate open enrollment"}}
            }
        },
        "/enrollments/{id}/progress": {
            "get": {
                "tags": ["Progress"],
                "summary": "Full progress projection",
                "responses": {"200": {"$ref": "#/responses/Envelope"}}
            }
        },
        "/enrollments/{id}/record": {
            "get": {
                "tags": ["Records"],
                "summary": "Export training record",
                "produces": ["text/csv", "application/pdf"],
                "responses": {"200": {"description": "Record file"}}
            }
        },
        "/completions": {
            "post": {
                "tags": ["Completions"],
                "summary": "Schedule a lesson attempt",
                "responses": {"201": {"$ref": "#/responses/Envelope"}, "409": {"description": "Prerequisites, open attempt or attempt limit"}}
            }
        },
        "/completions/{id}/complete": {
            "post": {
                "tags": ["Completions"],
                "summary": "Finalise an attempt",
                "responses": {"200": {"$ref": "#/responses/Envelope"}}
            }
        },
        "/stage-checks": {
            "post": {
                "tags": ["StageChecks"],
                "summary": "Schedule a stage check",
                "responses": {"201": {"$ref": "#/responses/Envelope"}, "409": {"description": "Open check or exhausted attempt budget"}}
            }
        },
        "/stage-checks/{id}/pass": {
            "post": {
                "tags": ["StageChecks"],
                "summary": "Record a passed stage check",
                "responses": {"200": {"$ref": "#/responses/Envelope"}}
            }
        }
    },
    "responses": {
        "Envelope": {"description": "Standard response envelope", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
    },
    "definitions": {
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
