package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campus Board Enrollment API",
        "description": "Course enrollment and grade ledger service",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Signup, login and token lifecycle"},
        {"name": "Catalog", "description": "Courses and sections"},
        {"name": "Enrollments", "description": "Section admission and drops"},
        {"name": "Grades", "description": "Grade ledger"}
    ],
    "paths": {
        "/auth/signup": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register a new account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SignupRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email already registered"}
                }
            }
        },
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
                "summary": "Refresh access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshTokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid refresh token"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Revoke refresh tokens",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user profile",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses": {
            "get": {
                "tags": ["Catalog"],
                "summary": "List courses",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sections": {
            "get": {
                "tags": ["Catalog"],
                "summary": "List open sections with live enrolled counts",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Catalog"],
                "summary": "Create a section",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSectionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden"}
                }
            }
        },
        "/sections/{id}": {
            "get": {
                "tags": ["Catalog"],
                "summary": "Get section detail",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "patch": {
                "tags": ["Catalog"],
                "summary": "Update a section",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateSectionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden"}
                }
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List my active enrollments",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll in a section",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollRequest"}}
                ],
                "responses": {
                    "201": {"description": "Enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Section not found"},
                    "409": {"description": "Already enrolled or section full"},
                    "412": {"description": "Section closed"}
                }
            }
        },
        "/enrollments/{id}": {
            "delete": {
                "tags": ["Enrollments"],
                "summary": "Drop an enrollment",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Dropped"},
                    "403": {"description": "Forbidden"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/grades": {
            "post": {
                "tags": ["Grades"],
                "summary": "Upload a grade",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UploadGradeRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden"},
                    "409": {"description": "Enrollment already graded"}
                }
            }
        },
        "/grades/me": {
            "get": {
                "tags": ["Grades"],
                "summary": "List my grades",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grades/{id}": {
            "patch": {
                "tags": ["Grades"],
                "summary": "Update a grade",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateGradeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden"}
                }
            },
            "delete": {
                "tags": ["Grades"],
                "summary": "Delete a grade",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "403": {"description": "Forbidden"}
                }
            }
        },
        "/sections/{id}/grades": {
            "get": {
                "tags": ["Grades"],
                "summary": "List section grades",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden"}
                }
            }
        },
        "/sections/{id}/grades/stats": {
            "get": {
                "tags": ["Grades"],
                "summary": "Section grade statistics",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sections/{id}/grades/export": {
            "get": {
                "tags": ["Grades"],
                "summary": "Export section grades as CSV or PDF",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Report file"}
                }
            }
        }
    },
    "definitions": {
        "SignupRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "full_name": {"type": "string"},
                "role": {"type": "string", "enum": ["STUDENT", "FACULTY"]}
            },
            "required": ["email", "password"]
        },
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "RefreshTokenRequest": {
            "type": "object",
            "properties": {
                "refresh_token": {"type": "string"}
            },
            "required": ["refresh_token"]
        },
        "CreateSectionRequest": {
            "type": "object",
            "properties": {
                "course_code": {"type": "string"},
                "course_name": {"type": "string"},
                "course_description": {"type": "string"},
                "name": {"type": "string"},
                "capacity": {"type": "integer", "minimum": 1},
                "semester": {"type": "string", "enum": ["SPRING", "SUMMER", "FALL", "WINTER"]},
                "year": {"type": "integer"}
            },
            "required": ["course_code", "course_name", "name", "capacity", "semester", "year"]
        },
        "UpdateSectionRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "capacity": {"type": "integer", "minimum": 1},
                "is_open": {"type": "boolean"}
            }
        },
        "EnrollRequest": {
            "type": "object",
            "properties": {
                "section_id": {"type": "string"}
            },
            "required": ["section_id"]
        },
        "UploadGradeRequest": {
            "type": "object",
            "properties": {
                "enrollment_id": {"type": "string"},
                "grade": {"type": "string"},
                "percentage": {"type": "number"},
                "remarks": {"type": "string"}
            },
            "required": ["enrollment_id", "grade"]
        },
        "UpdateGradeRequest": {
            "type": "object",
            "properties": {
                "grade": {"type": "string"},
                "percentage": {"type": "number"},
                "remarks": {"type": "string"}
            }
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
                "message": {"type": "string"},
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
