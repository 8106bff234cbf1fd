package session

// State is the lifecycle state of the manager's capture session
type State int32

const (
	Idle State = iota
	Starting
	Running
	Stopping
	// Failed is transient: a failed start or a dead loop settles back to Idle
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Failed:
		return "failed"
	}
	return "unknown"
}
