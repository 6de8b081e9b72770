package processstate

// State is what a PID file says about one descriptor entry
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped" // PID file present, process gone
	StateAbsent  State = "absent"  // no PID file
	StateUnknown State = "unknown"
)

// StateOf classifies a PID read from a PID file; pid 0 means no file
func StateOf(pid int) (State, error) {
	if pid == 0 {
		return StateAbsent, nil
	}
	running, err := IsProcessRunning(pid)
	if err != nil {
		return StateUnknown, err
	}
	if running {
		return StateRunning, nil
	}
	return StateStopped, nil
}
