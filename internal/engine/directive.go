package engine

type (
	DirectiveKind    string
	EscalationAction string
	State            string
)

const (
	DirectiveNone          DirectiveKind = "none"
	DirectiveDelete        DirectiveKind = "delete"
	DirectiveDeleteAndWarn DirectiveKind = "delete_and_warn"
	DirectiveEscalate      DirectiveKind = "escalate"
)

const (
	ActionBan           EscalationAction = "ban"
	ActionKick          EscalationAction = "kick"
	ActionTimedMute     EscalationAction = "timed_mute"
	ActionClearWarnings EscalationAction = "clear_warnings"
)

const (
	StateClean      State = "clean"
	StateWarned     State = "warned"
	StateMaxReached State = "max_reached"
)

// Directive is the engine's instruction to the transport collaborator
// for one inbound event. The engine never executes escalation actions
// itself; it only offers the candidate set.
type Directive struct {
	Kind             DirectiveKind
	CaseID           string
	WarningCount     int
	Reasons          []string
	CandidateActions []EscalationAction
}

func escalationCandidates() []EscalationAction {
	return []EscalationAction{ActionBan, ActionKick, ActionTimedMute, ActionClearWarnings}
}

// StateOf derives the escalation state purely from the durable warning
// count, so there is no separate state variable to desynchronize after
// a crash.
func StateOf(warningCount, maxWarnings int) State {
	switch {
	case warningCount <= 0:
		return StateClean
	case warningCount < maxWarnings:
		return StateWarned
	default:
		return StateMaxReached
	}
}
