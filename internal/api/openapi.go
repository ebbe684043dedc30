package api

type jsonObject = map[string]any

// op describes one documented operation. Authenticated operations carry the
// bearer security requirement.
type op struct {
	tag     string
	summary string
	authed  bool
	body    string
	status  string
}

func (o op) render() jsonObject {
	out := jsonObject{
		"tags":    []string{o.tag},
		"summary": o.summary,
		"responses": jsonObject{
			o.status:  jsonObject{"description": "Success"},
			"default": jsonObject{"$ref": "#/components/responses/Error"},
		},
	}
	if o.authed {
		out["security"] = []jsonObject{{"bearerAuth": []string{}}}
	}
	if o.body != "" {
		out["requestBody"] = jsonObject{
			"required": true,
			"content": jsonObject{
				"application/json": jsonObject{
					"schema": jsonObject{"$ref": "#/components/schemas/" + o.body},
				},
			},
		}
	}
	return out
}

func str(extra ...jsonObject) jsonObject {
	s := jsonObject{"type": "string"}
	for _, e := range extra {
		for k, v := range e {
			s[k] = v
		}
	}
	return s
}

func object(required []string, props jsonObject) jsonObject {
	return jsonObject{"type": "object", "required": required, "properties": props}
}

// openAPIDocument returns the API description served at /openapi.json.
func openAPIDocument(serverURL string) jsonObject {
	uuid := jsonObject{"format": "uuid"}
	role := str(jsonObject{"enum": []string{"OWNER", "ADMIN", "MEMBER"}})
	status := str(jsonObject{"enum": []string{"TODO", "IN_PROGRESS", "BLOCKED", "DONE"}})
	priority := str(jsonObject{"enum": []string{"LOW", "MEDIUM", "HIGH", "URGENT"}})

	paths := jsonObject{
		"/health":  jsonObject{"get": op{tag: "System", summary: "Health check", status: "200"}.render()},
		"/metrics": jsonObject{"get": op{tag: "System", summary: "Prometheus metrics", status: "200"}.render()},
		"/auth/register": jsonObject{
			"post": op{tag: "Auth", summary: "Register user", body: "RegisterRequest", status: "201"}.render(),
		},
		"/auth/login": jsonObject{
			"post": op{tag: "Auth", summary: "Login user", body: "LoginRequest", status: "200"}.render(),
		},
		"/auth/refresh": jsonObject{
			"post": op{tag: "Auth", summary: "Refresh access token", body: "RefreshRequest", status: "200"}.render(),
		},
		"/auth/logout": jsonObject{
			"post": op{tag: "Auth", summary: "Logout (revoke refresh token)", body: "RefreshRequest", status: "204"}.render(),
		},
		"/me": jsonObject{"get": op{tag: "Me", summary: "Get current user", authed: true, status: "200"}.render()},
		"/teams": jsonObject{
			"get":  op{tag: "Teams", summary: "List teams for current user", authed: true, status: "200"}.render(),
			"post": op{tag: "Teams", summary: "Create team", authed: true, body: "CreateTeamRequest", status: "201"}.render(),
		},
		"/teams/{teamId}/members": jsonObject{
			"get":  op{tag: "Teams", summary: "List team members", authed: true, status: "200"}.render(),
			"post": op{tag: "Teams", summary: "Add team member", authed: true, body: "AddMemberRequest", status: "201"}.render(),
		},
		"/teams/{teamId}/members/{userId}": jsonObject{
			"patch":  op{tag: "Teams", summary: "Update team member role", authed: true, body: "UpdateMemberRequest", status: "200"}.render(),
			"delete": op{tag: "Teams", summary: "Remove team member", authed: true, status: "204"}.render(),
		},
		"/teams/{teamId}/tasks": jsonObject{
			"get":  op{tag: "Tasks", summary: "List tasks for a team", authed: true, status: "200"}.render(),
			"post": op{tag: "Tasks", summary: "Create task in a team", authed: true, body: "CreateTaskRequest", status: "201"}.render(),
		},
		"/teams/{teamId}/tasks/{taskId}": jsonObject{
			"patch": op{tag: "Tasks", summary: "Update a task", authed: true, body: "UpdateTaskRequest", status: "200"}.render(),
		},
		"/teams/{teamId}/tasks/{taskId}/comments": jsonObject{
			"get":  op{tag: "Comments", summary: "List task comments", authed: true, status: "200"}.render(),
			"post": op{tag: "Comments", summary: "Create task comment", authed: true, body: "CreateCommentRequest", status: "201"}.render(),
		},
		"/teams/{teamId}/tasks/{taskId}/comments/{commentId}": jsonObject{
			"delete": op{tag: "Comments", summary: "Delete a comment (soft-delete)", authed: true, status: "204"}.render(),
		},
		"/teams/{teamId}/activity": jsonObject{
			"get": op{tag: "Activity", summary: "List team activity", authed: true, status: "200"}.render(),
		},
	}

	return jsonObject{
		"openapi": "3.0.3",
		"info": jsonObject{
			"title":       "TaskForge API",
			"version":     "1.0.0",
			"description": "TaskForge is a realtime team task tracker (HTTP + WebSocket).",
		},
		"servers": []jsonObject{{"url": serverURL}},
		"tags": []jsonObject{
			{"name": "System"}, {"name": "Auth"}, {"name": "Me"},
			{"name": "Teams"}, {"name": "Tasks"}, {"name": "Comments"}, {"name": "Activity"},
		},
		"paths": paths,
		"components": jsonObject{
			"securitySchemes": jsonObject{
				"bearerAuth": jsonObject{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
			"responses": jsonObject{
				"Error": jsonObject{
					"description": "Error",
					"content": jsonObject{
						"application/json": jsonObject{"schema": jsonObject{"$ref": "#/components/schemas/ErrorResponse"}},
					},
				},
			},
			"schemas": jsonObject{
				"ErrorResponse": object([]string{"error"}, jsonObject{
					"error": object([]string{"code", "message", "requestId"}, jsonObject{
						"code":      str(),
						"message":   str(),
						"requestId": str(),
						"details":   jsonObject{"type": "object", "additionalProperties": true},
					}),
				}),
				"RegisterRequest": object([]string{"email", "name", "password"}, jsonObject{
					"email":    str(jsonObject{"format": "email", "maxLength": 254}),
					"name":     str(jsonObject{"minLength": 1, "maxLength": 120}),
					"password": str(jsonObject{"format": "password", "minLength": 8, "maxLength": 200}),
				}),
				"LoginRequest": object([]string{"email", "password"}, jsonObject{
					"email":    str(jsonObject{"format": "email"}),
					"password": str(jsonObject{"format": "password"}),
				}),
				"RefreshRequest": object([]string{"refreshToken"}, jsonObject{
					"refreshToken": str(),
				}),
				"CreateTeamRequest": object([]string{"name"}, jsonObject{
					"name": str(jsonObject{"minLength": 1, "maxLength": 120}),
				}),
				"AddMemberRequest": object([]string{"userId", "role"}, jsonObject{
					"userId": str(uuid),
					"role":   role,
				}),
				"UpdateMemberRequest": object([]string{"role"}, jsonObject{
					"role": role,
				}),
				"CreateTaskRequest": object([]string{"title"}, jsonObject{
					"title":          str(jsonObject{"minLength": 1, "maxLength": 200}),
					"description":    str(jsonObject{"minLength": 1, "maxLength": 5000}),
					"status":         status,
					"priority":       priority,
					"dueAt":          str(jsonObject{"format": "date-time"}),
					"assigneeUserId": str(uuid),
				}),
				"UpdateTaskRequest": object([]string{}, jsonObject{
					"title":          str(jsonObject{"minLength": 1, "maxLength": 200}),
					"description":    str(jsonObject{"nullable": true, "maxLength": 5000}),
					"status":         status,
					"priority":       priority,
					"dueAt":          str(jsonObject{"format": "date-time", "nullable": true}),
					"assigneeUserId": str(uuid, jsonObject{"nullable": true}),
				}),
				"CreateCommentRequest": object([]string{"body"}, jsonObject{
					"body": str(jsonObject{"minLength": 1, "maxLength": 5000}),
				}),
			},
		},
	}
}
