package updatemanager

// Phase is a step of an update process. Phases only move forward.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseChecking
	PhaseResolving
	PhaseDownloading
	PhaseVerifying
	PhaseInstalling
	PhaseConcluded
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseChecking:
		return "checking"
	case PhaseResolving:
		return "resolving"
	case PhaseDownloading:
		return "downloading"
	case PhaseVerifying:
		return "verifying"
	case PhaseInstalling:
		return "installing"
	case PhaseConcluded:
		return "concluded"
	default:
		return "unknown"
	}
}

// Outcome is the result of a process; it stays OutcomePending until the process concludes
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// CheckKind tells whether a process installs what it finds
type CheckKind int

const (
	// CheckUpdate runs the full download, verify and install pipeline
	CheckUpdate CheckKind = iota
	// CheckInformation stops after resolving the available update
	CheckInformation
)

func (k CheckKind) String() string {
	if k == CheckInformation {
		return "information"
	}
	return "update"
}
