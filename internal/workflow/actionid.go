package workflow

import "strings"

// actionSeparator joins a workflow id and an action label into an opaque
// button action id.
const actionSeparator = "|"

// ActionID encodes a workflow id and an action label into a button action
// id the adapter can attach to interactive elements.
func ActionID(workflowID, action string) string {
	return workflowID + actionSeparator + action
}

// ParseActionID inverts ActionID. Workflow ids may themselves contain the
// separator character, so the split anchors on the last occurrence, never
// the first.
func ParseActionID(actionID string) (workflowID, action string, ok bool) {
	i := strings.LastIndex(actionID, actionSeparator)
	if i <= 0 || i == len(actionID)-1 {
		return "", "", false
	}
	return actionID[:i], actionID[i+1:], true
}
