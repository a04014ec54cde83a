package nas

import "fmt"

// NetError is the single category for unreachable peers, refused connections
// and streams reset mid-frame. It is never retried internally; callers log
// and carry on, the next triggering event retries the full reconciliation.
type NetError struct {
	Op  string
	Err error
}

func (e *NetError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("nas: network error during %s", e.Op)
	}
	return fmt.Sprintf("nas: network error during %s: %v", e.Op, e.Err)
}

func (e *NetError) Unwrap() error {
	return e.Err
}

// DeviceError means the device rejected a command (!trap) and carries the
// device-reported message text.
type DeviceError struct {
	Message string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("nas: command rejected: %s", e.Message)
}
