package lifecycle

import (
	"fmt"
	"strings"

	"hostpanel/internal/model"
)

// Raw daemon poll reports.
const (
	ReportRunning = "running"
	ReportOnline  = "online"
	ReportOffline = "offline"
)

// Merge applies a raw daemon poll report to the current state. An offline
// report always wins. A running report never clears a transient command
// intent; only a command or an explicit completion push does.
func Merge(current model.ServerStatus, raw string) model.ServerStatus {
	switch strings.ToLower(raw) {
	case ReportOffline:
		return model.StatusOffline
	case ReportRunning, ReportOnline:
		if current.IsTransient() {
			return current
		}
		if strings.EqualFold(raw, ReportOnline) {
			return model.StatusOnline
		}
	}
	return model.StatusUnknown
}

type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
	ActionKill    Action = "kill"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(s)); a {
	case ActionStart, ActionStop, ActionRestart, ActionKill:
		return a, nil
	}
	return "", fmt.Errorf("unknown power action %q", s)
}

// Transient is the intent recorded once the daemon accepted the action.
func (a Action) Transient() model.ServerStatus {
	switch a {
	case ActionStart:
		return model.StatusStarting
	case ActionStop:
		return model.StatusStopping
	case ActionRestart:
		return model.StatusRestarting
	default:
		return model.StatusKilling
	}
}

// Message is the human text sent alongside power events.
func (a Action) Message() string {
	return "Server " + string(a.Transient()) + "..."
}
