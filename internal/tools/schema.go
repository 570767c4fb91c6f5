package tools

import "github.com/laraib28/todo-k8s/internal/tasks"

// definition is one tool schema before conversion to the wire form.
type definition struct {
	name        Name
	description string
	parameters  map[string]any
}

func priorityEnum(nullable bool) []any {
	enum := make([]any, 0, len(tasks.Priorities)+1)
	for _, p := range tasks.Priorities {
		enum = append(enum, string(p))
	}
	if nullable {
		enum = append(enum, nil)
	}
	return enum
}

func taskIDProperty(desc string) map[string]any {
	return map[string]any{
		"type":        "integer",
		"description": desc,
	}
}

// definitions returns the task tool schemas in Names order. Bounds here
// must agree with the checks in the handlers and the task store.
func definitions() []definition {
	return []definition{
		{
			name:        CreateTask,
			description: "Create a new todo task with title, optional description, and priority",
			parameters: map[string]any{
				"type":     "object",
				"required": []string{"title"},
				"properties": map[string]any{
					"title": map[string]any{
						"type":        "string",
						"description": "Task title (1-200 characters)",
						"minLength":   1,
						"maxLength":   tasks.MaxTitleLen,
					},
					"description": map[string]any{
						"type":        "string",
						"description": "Task description (optional, max 2000 characters)",
						"maxLength":   tasks.MaxDescriptionLen,
						"default":     "",
					},
					"priority": map[string]any{
						"type":        "string",
						"description": "Task priority level",
						"enum":        priorityEnum(false),
						"default":     string(tasks.PriorityMedium),
					},
				},
			},
		},
		{
			name:        ListTasks,
			description: "List tasks with optional filters for completion status, priority, and title search",
			parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"is_complete": map[string]any{
						"type":        []string{"boolean", "null"},
						"description": "Filter by completion status (true=completed, false=incomplete, null=all)",
						"default":     nil,
					},
					"priority": map[string]any{
						"type":        []string{"string", "null"},
						"description": "Filter by priority level",
						"enum":        priorityEnum(true),
						"default":     nil,
					},
					"title_query": map[string]any{
						"type":        []string{"string", "null"},
						"description": "Case-insensitive substring search for task titles (supports simple close matches like grocery/groceries)",
						"default":     nil,
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of tasks to return",
						"minimum":     1,
						"maximum":     tasks.MaxListLimit,
						"default":     tasks.DefaultListLimit,
					},
				},
			},
		},
		{
			name:        UpdateTask,
			description: "Update an existing task's title, description, or priority",
			parameters: map[string]any{
				"type":     "object",
				"required": []string{"task_id"},
				"properties": map[string]any{
					"task_id": taskIDProperty("ID of the task to update"),
					"title": map[string]any{
						"type":        []string{"string", "null"},
						"description": "New task title (1-200 characters)",
						"minLength":   1,
						"maxLength":   tasks.MaxTitleLen,
					},
					"description": map[string]any{
						"type":        []string{"string", "null"},
						"description": "New task description (max 2000 characters)",
						"maxLength":   tasks.MaxDescriptionLen,
					},
					"priority": map[string]any{
						"type":        []string{"string", "null"},
						"description": "New task priority level",
						"enum":        priorityEnum(true),
					},
				},
			},
		},
		{
			name:        ToggleTaskCompletion,
			description: "Mark a task as complete or incomplete",
			parameters: map[string]any{
				"type":     "object",
				"required": []string{"task_id", "is_complete"},
				"properties": map[string]any{
					"task_id": taskIDProperty("ID of the task to toggle"),
					"is_complete": map[string]any{
						"type":        "boolean",
						"description": "New completion status (true=completed, false=incomplete)",
					},
				},
			},
		},
		{
			name:        DeleteTask,
			description: "Permanently delete a task",
			parameters: map[string]any{
				"type":     "object",
				"required": []string{"task_id"},
				"properties": map[string]any{
					"task_id": taskIDProperty("ID of the task to delete"),
				},
			},
		},
		{
			name:        GetTask,
			description: "Get a single task by ID",
			parameters: map[string]any{
				"type":     "object",
				"required": []string{"task_id"},
				"properties": map[string]any{
					"task_id": taskIDProperty("ID of the task to retrieve"),
				},
			},
		},
	}
}

// wire converts d to the OpenAI function-calling shape.
func (d definition) wire() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        string(d.name),
			"description": d.description,
			"parameters":  d.parameters,
		},
	}
}
