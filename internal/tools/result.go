package tools

import (
	"encoding/json"

	"github.com/laraib28/todo-k8s/internal/tasks"
)

// Result is the envelope returned for every tool call, successful or not.
// It is serialized verbatim into the transcript.
type Result struct {
	Success bool         `json:"success"`
	Task    *tasks.Task  `json:"task,omitempty"`
	TaskID  *int64       `json:"task_id,omitempty"` // set when no Task is returned, e.g. after delete
	Tasks   []tasks.Task `json:"tasks,omitempty"`
	Count   *int         `json:"count,omitempty"`
	Message string       `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Error messages reported in failed envelopes.
const (
	msgUnauthorized = "Unauthorized"
	msgNotFound     = "Task not found"
	msgUnavailable  = "Task tools are not available"
	msgDeleted      = "Task deleted successfully"
)

func failure(msg string) Result {
	return Result{Success: false, Error: msg}
}

// SubjectID returns the identifier of the task the result refers to.
func (r Result) SubjectID() (int64, bool) {
	switch {
	case r.Task != nil:
		return r.Task.ID, true
	case r.TaskID != nil:
		return *r.TaskID, true
	}
	return 0, false
}

// MarshalJSON emits an empty tasks array, rather than omitting it, for
// list results that matched nothing.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	if r.Count != nil && len(r.Tasks) == 0 {
		return json.Marshal(struct {
			plain
			Tasks []tasks.Task `json:"tasks"`
		}{plain: plain(r), Tasks: []tasks.Task{}})
	}
	return json.Marshal(plain(r))
}

// JSON returns the envelope as a JSON string for the transcript.
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"error":"result encoding failed"}`
	}
	return string(b)
}
