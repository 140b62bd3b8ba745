package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Activity Credit API",
        "description": "Student volunteer activity registration, biometric attendance and feedback service",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login, token refresh, session management"},
        {"name": "Activities", "description": "Published activity catalogue"},
        {"name": "Registrations", "description": "Activity sign-up lifecycle"},
        {"name": "Attendance", "description": "Check-in/check-out with face verification"},
        {"name": "Face Profile", "description": "Biometric descriptor enrollment"},
        {"name": "Feedback", "description": "Post-participation feedback"},
        {"name": "Reports", "description": "Staff roster exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Rotate refresh token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Revoke refresh token",
                "responses": {
                    "204": {"description": "Logged out"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user info",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/activities": {
            "get": {
                "tags": ["Activities"],
                "summary": "List published activities",
                "parameters": [
                    {"name": "method", "in": "query", "type": "string", "enum": ["QR", "PHOTO"]},
                    {"name": "from", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "to", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "order", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/activities/{id}": {
            "get": {
                "tags": ["Activities"],
                "summary": "Get activity detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/activities/{id}/registrations": {
            "post": {
                "tags": ["Registrations"],
                "summary": "Register for an activity",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Registered", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already registered or full"},
                    "412": {"description": "Enrollment required"}
                }
            },
            "delete": {
                "tags": ["Registrations"],
                "summary": "Cancel a registration",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Cancelled"},
                    "409": {"description": "Participation already settled"}
                }
            }
        },
        "/registrations": {
            "get": {
                "tags": ["Registrations"],
                "summary": "List my registrations with derived states",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "feedbackStatus", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/activities/{id}/attendance": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Record a check-in or check-out",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordAttendanceRequest"}}
                ],
                "responses": {
                    "201": {"description": "Recorded", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate phase or check-in required"},
                    "422": {"description": "Outside attendance window"}
                }
            },
            "get": {
                "tags": ["Attendance"],
                "summary": "Attendance history for my registration",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/activities/{id}/roster": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download the participant roster of an activity",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "produces": ["text/csv", "application/pdf"],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/attendance/review": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List entries awaiting manual review",
                "parameters": [
                    {"name": "activityId", "in": "query", "type": "string"},
                    {"name": "verdict", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/review/{id}": {
            "put": {
                "tags": ["Attendance"],
                "summary": "Resolve a flagged attendance entry",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ResolveEntryRequest"}}
                ],
                "responses": {
                    "200": {"description": "Resolved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already settled"}
                }
            }
        },
        "/attendance/{id}/evidence-link": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Mint a signed evidence download link",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden"}
                }
            }
        },
        "/evidence/{token}": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Download evidence via signed token",
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "produces": ["image/jpeg"],
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Invalid or expired token"}
                }
            }
        },
        "/face-profile": {
            "put": {
                "tags": ["Face Profile"],
                "summary": "Enroll face descriptors",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Insufficient usable samples"}
                }
            },
            "get": {
                "tags": ["Face Profile"],
                "summary": "Enrollment summary",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registrations/{id}/feedback": {
            "post": {
                "tags": ["Feedback"],
                "summary": "Submit feedback for an attended registration",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitFeedbackRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already submitted"},
                    "412": {"description": "Feedback window not open"}
                }
            }
        },
        "/feedback/{id}": {
            "put": {
                "tags": ["Feedback"],
                "summary": "Approve or reject a pending feedback",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ModerateFeedbackRequest"}}
                ],
                "responses": {
                    "200": {"description": "Moderated", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already moderated"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "RecordAttendanceRequest": {
            "type": "object",
            "properties": {
                "phase": {"type": "string", "enum": ["CHECKIN", "CHECKOUT"]},
                "descriptor": {"type": "array", "items": {"type": "number"}},
                "evidence": {"type": "string", "description": "base64-encoded photo"},
                "note": {"type": "string"},
                "absent": {"type": "boolean"}
            },
            "required": ["phase"]
        },
        "ResolveEntryRequest": {
            "type": "object",
            "properties": {
                "approve": {"type": "boolean"}
            },
            "required": ["approve"]
        },
        "EnrollRequest": {
            "type": "object",
            "properties": {
                "descriptors": {
                    "type": "array",
                    "items": {"type": "array", "items": {"type": "number"}}
                },
                "samples": {
                    "type": "array",
                    "items": {"type": "string"}
                }
            },
            "required": ["descriptors"]
        },
        "SubmitFeedbackRequest": {
            "type": "object",
            "properties": {
                "content": {"type": "string", "minLength": 10, "maxLength": 4000}
            },
            "required": ["content"]
        },
        "ModerateFeedbackRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["APPROVED", "REJECTED"]},
                "note": {"type": "string"}
            },
            "required": ["status"]
        },
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
