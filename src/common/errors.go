package common

import "fmt"

// ErrType classifies miner errors into the categories that the session loop
// and the CLI react to.
type ErrType uint32

const (
	// CapacityExceeded - an insert would overflow the RAM commitment.
	CapacityExceeded ErrType = iota
	// ProtocolViolation - malformed or unexpected coordinator message.
	ProtocolViolation
	// ChallengeMissed - a challenge response was not ready before its deadline.
	ChallengeMissed
	// Persistence - identity or snapshot could not be written to durable
	// storage.
	Persistence
)

// MinerErr is the error type shared by the miner components. The session loop
// inspects the code to decide between retrying, counting and aborting.
type MinerErr struct {
	errType ErrType
	msg     string
}

// NewMinerErr returns a MinerErr with the given code and message.
func NewMinerErr(errType ErrType, format string, args ...interface{}) MinerErr {
	return MinerErr{
		errType: errType,
		msg:     fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface.
func (e MinerErr) Error() string {
	c := ""
	switch e.errType {
	case CapacityExceeded:
		c = "Capacity Exceeded"
	case ProtocolViolation:
		c = "Protocol Violation"
	case ChallengeMissed:
		c = "Challenge Missed"
	case Persistence:
		c = "Persistence"
	}

	return fmt.Sprintf("%s: %s", c, e.msg)
}

// Is checks that an error is of type MinerErr and that its code matches the
// provided ErrType.
func Is(err error, t ErrType) bool {
	minerErr, ok := err.(MinerErr)
	return ok && minerErr.errType == t
}
