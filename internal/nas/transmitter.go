package nas

// Transmitter is the vendor-agnostic synchronization contract. One
// implementation exists per NAS vendor; new vendors implement these
// operations without touching the callers.
//
// AddUser and AddUsers are best-effort: a billing state transition must not
// roll back on NAS unavailability, so failures are logged and swallowed.
// The remaining operations propagate the NetError / DeviceError taxonomy.
type Transmitter interface {
	// AddUser provisions a queue and an allow-list entry for the subscriber.
	AddUser(user Subscriber)

	// UpdateUser converges the device to the snapshot: removes state for
	// inactive subscribers, removes the queue when no tariff is assigned,
	// and otherwise creates or corrects the queue and allow-list entry.
	UpdateUser(user Subscriber) error

	// RemoveUser unconditionally removes the subscriber's queue and
	// allow-list entry, if any.
	RemoveUser(user Subscriber) error

	// AddUsers provisions each subscriber in turn, best-effort.
	AddUsers(users []Subscriber)

	// RemoveUsers bulk-removes the known queues, then each allow-list entry.
	RemoveUsers(users []Subscriber) error

	// ReadUsers performs the full reconciliation sweep and returns the set
	// of subscribers currently served by the device. Allow-list entries
	// with no backing queue are pruned; orphaned queues are left in place.
	ReadUsers() ([]Subscriber, error)
}
