package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Campus Course API",
        "description": "Course registration and coursework tracking backend",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Courses", "description": "Course catalog"},
        {"name": "Enrollments", "description": "Enrollment ledger and rosters"},
        {"name": "Assignments", "description": "Coursework, submissions and grading"},
        {"name": "Announcements", "description": "Course announcements"},
        {"name": "Users", "description": "Identity directory"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate with email and password",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Auth"],
                "summary": "Current authenticated identity",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "Search the course catalog",
                "parameters": [
                    {"name": "q", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Courses"],
                "summary": "Create a course",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Course code already exists"}
                }
            }
        },
        "/courses/{id}": {
            "get": {
                "tags": ["Courses"],
                "summary": "Get a course by ID",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Courses"],
                "summary": "Update a course",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK"},
                    "403": {"description": "Forbidden"}
                }
            },
            "delete": {
                "tags": ["Courses"],
                "summary": "Delete a course",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Deleted"}
                }
            }
        },
        "/courses/code/{code}": {
            "get": {
                "tags": ["Courses"],
                "summary": "Get a course by its unique code",
                "parameters": [{"name": "code", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/courses/{id}/enrollments": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll a student into a course",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "201": {"description": "Enrolled"},
                    "409": {"description": "Already enrolled or no seats available"}
                }
            }
        },
        "/courses/{id}/enrollments/{studentId}": {
            "delete": {
                "tags": ["Enrollments"],
                "summary": "Drop a student from a course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Dropped"},
                    "404": {"description": "Not enrolled"}
                }
            }
        },
        "/courses/{id}/roster": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List students enrolled in a course",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/courses/{id}/roster/count": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Count students enrolled in a course",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/courses/{id}/roster/export": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Export the course roster as CSV or PDF",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        },
        "/students/{id}/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "List the courses a student is enrolled in",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/courses/{id}/assignments": {
            "get": {
                "tags": ["Assignments"],
                "summary": "List assignments of a course",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "tags": ["Assignments"],
                "summary": "Create an assignment",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/assignments/{id}/submissions": {
            "get": {
                "tags": ["Assignments"],
                "summary": "List all submissions for an assignment",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "tags": ["Assignments"],
                "summary": "Submit work for an assignment",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Stored"},
                    "400": {"description": "Empty submission"}
                }
            }
        },
        "/assignments/{id}/submissions/{studentId}/grade": {
            "put": {
                "tags": ["Assignments"],
                "summary": "Grade a student's submission",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Graded"},
                    "400": {"description": "Grade out of range or not a number"},
                    "404": {"description": "No submission from this student"}
                }
            }
        },
        "/assignments/{id}/status": {
            "get": {
                "tags": ["Assignments"],
                "summary": "Submission status for a student",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "student_id", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/courses/{id}/announcements": {
            "get": {
                "tags": ["Announcements"],
                "summary": "List announcements of a course",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "tags": ["Announcements"],
                "summary": "Post an announcement",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/users": {
            "get": {
                "tags": ["Users"],
                "summary": "List users",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "role", "in": "query", "type": "string"},
                    {"name": "q", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "tags": ["Users"],
                "summary": "Provision a user account",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Email already registered"}
                }
            }
        },
        "/users/{id}": {
            "get": {
                "tags": ["Users"],
                "summary": "Get a user by ID",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
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
