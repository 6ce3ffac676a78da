package orders

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusCompleted: true, StatusFailed: true},
	StatusCompleted: {},
	StatusFailed:    {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
