package cdp

import (
	"encoding/json"
	"time"
)

type slotState int

const (
	slotWaiting slotState = iota
	slotBlocked
	slotReceived
	slotIgnored
)

// responseSlot tracks one in-flight command from the moment it is sent
// until its response is consumed or abandoned. Blocked/Ignored exist for
// the case where a JavaScript dialog opens while commands are in flight
// on the same page: those commands may never get a response, so the pump
// marks them Blocked rather than waiting on them forever, and the waiter
// that eventually notices moves it to Ignored so a response arriving late
// does not get delivered twice.
type responseSlot struct {
	state          slotState
	method         string
	commandTimeout time.Duration
	result         json.RawMessage
	err            *ProtocolError
}
