package befunge

// Direction is the heading of the instruction pointer.
type Direction int

const (
	Right Direction = iota
	Down
	Left
	Up
)

var directionNames = map[Direction]string{
	Right: "right",
	Down:  "down",
	Left:  "left",
	Up:    "up",
}

func (d Direction) String() string {
	if name, ok := directionNames[d]; ok {
		return name
	}
	return "unknown"
}

// delta returns the unit movement for the direction.
func (d Direction) delta() (dx, dy int) {
	switch d {
	case Right:
		return 1, 0
	case Left:
		return -1, 0
	case Down:
		return 0, 1
	case Up:
		return 0, -1
	}
	return 0, 0
}

// State is the lifecycle state of an engine.
type State int

const (
	NotLoaded State = iota
	Running
	Halted
	Faulted // latched after a decode error
)

func (s State) String() string {
	switch s {
	case NotLoaded:
		return "not_loaded"
	case Running:
		return "running"
	case Halted:
		return "halted"
	case Faulted:
		return "faulted"
	}
	return "unknown"
}

// Status is the outcome of a single Step.
type Status int

const (
	StatusContinuing Status = iota
	StatusTerminated
	StatusNotReady
	StatusDecodeError
)

func (s Status) String() string {
	switch s {
	case StatusContinuing:
		return "continuing"
	case StatusTerminated:
		return "terminated"
	case StatusNotReady:
		return "not_ready"
	case StatusDecodeError:
		return "decode_error"
	}
	return "unknown"
}
