// Package tools exposes task operations to the reasoning model as named
// tools, validates the arguments the model supplies, and reports every
// outcome in one uniform Result envelope.
package tools

// Name identifies one of the task tools.
type Name string

// The task tools, in the order their definitions are offered.
const (
	CreateTask           Name = "create_task"
	ListTasks            Name = "list_tasks"
	UpdateTask           Name = "update_task"
	ToggleTaskCompletion Name = "toggle_task_completion"
	DeleteTask           Name = "delete_task"
	GetTask              Name = "get_task"
)

// Names lists every tool in definition order.
var Names = []Name{CreateTask, ListTasks, UpdateTask, ToggleTaskCompletion, DeleteTask, GetTask}

// ParseName maps a model-supplied tool name to a Name. Matching is exact.
func ParseName(s string) (Name, bool) {
	for _, n := range Names {
		if string(n) == s {
			return n, true
		}
	}
	return "", false
}
