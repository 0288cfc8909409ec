package graph

import "github.com/dohr-michael/pokus/internal/tasks"

// Node names a state of the per-turn graph:
// START → ROUTING → {HANDLER[task_id] | DIRECT_RESPONSE} → DONE.
type Node string

const (
	NodeStart          Node = "start"
	NodeRouting        Node = "routing"
	NodeDirectResponse Node = "direct_response"
	NodeDone           Node = "done"
)

// HandlerNode returns the node bound to a task id.
func HandlerNode(taskID string) Node {
	if taskID == tasks.DirectResponseID {
		return NodeDirectResponse
	}
	return Node("handler:" + taskID)
}
