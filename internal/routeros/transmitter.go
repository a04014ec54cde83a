package routeros

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/avlasov/nassync/internal/nas"
)

// AddUser provisions a queue and an allow-list entry for the subscriber,
// best-effort: either command may fail without affecting the other, and no
// failure propagates to the billing-side caller. An inactive snapshot or one
// without a tariff must never produce device state and is skipped outright.
func (t *Transmitter) AddUser(user nas.Subscriber) {
	log := t.opLog("add_user", user.UID)
	if !user.Active || user.Tariff == nil {
		log.Debug().Msg("nothing to provision")
		return
	}
	if err := t.AddQueue(user); err != nil {
		log.Warn().Err(err).Msg("add queue failed")
	}
	if err := t.AddAllow(user.IP); err != nil {
		log.Warn().Err(err).Msg("add allow-list entry failed")
	}
}

// AddUsers provisions each subscriber in turn.
func (t *Transmitter) AddUsers(users []nas.Subscriber) {
	for _, u := range users {
		t.AddUser(u)
	}
}

// UpdateUser converges the device to the target snapshot, keyed by what the
// device currently reports for the derived queue name and the allow-list
// address.
func (t *Transmitter) UpdateUser(user nas.Subscriber) error {
	log := t.opLog("update_user", user.UID)

	entry, err := t.FindAllow(user.IP)
	if err != nil {
		return err
	}
	queue, err := t.FindQueue(queueName(user.UID))
	if err != nil {
		return err
	}

	if !user.Active {
		// Terminal state: absent from both tables.
		if entry != nil {
			if err := t.RemoveAllow(entry.DeviceID); err != nil {
				return err
			}
		}
		if queue != nil {
			if err := t.RemoveQueue(user); err != nil {
				return err
			}
		}
		log.Debug().Msg("inactive subscriber deprovisioned")
		return nil
	}

	if user.Tariff == nil {
		// No service despite being active: drop the queue. The allow-list
		// entry is intentionally left untouched in this branch.
		if queue != nil {
			if err := t.RemoveQueue(user); err != nil {
				return err
			}
			log.Debug().Msg("queue removed, no service assigned")
		}
		return nil
	}

	if entry == nil {
		if err := t.AddAllow(user.IP); err != nil {
			return err
		}
	}
	if queue == nil {
		log.Debug().Msg("creating queue")
		return t.AddQueue(user)
	}
	if !queue.Equal(user) {
		log.Debug().Msg("correcting queue")
		return t.UpdateQueue(user)
	}
	return nil
}

// RemoveUser unconditionally removes the subscriber's queue and allow-list
// entry; used on subscriber deletion.
func (t *Transmitter) RemoveUser(user nas.Subscriber) error {
	log := t.opLog("remove_user", user.UID)
	if err := t.RemoveQueue(user); err != nil {
		return err
	}
	entry, err := t.FindAllow(user.IP)
	if err != nil {
		return err
	}
	if entry != nil {
		if err := t.RemoveAllow(entry.DeviceID); err != nil {
			return err
		}
	}
	log.Debug().Msg("subscriber deprovisioned")
	return nil
}

// RemoveUsers bulk-removes the known queues in one command, then each
// subscriber's allow-list entry.
func (t *Transmitter) RemoveUsers(users []nas.Subscriber) error {
	refs := make([]string, 0, len(users))
	for _, u := range users {
		if validQueueRef(u.QueueRef) {
			refs = append(refs, u.QueueRef)
		}
	}
	if err := t.RemoveQueues(refs); err != nil {
		return err
	}
	for _, u := range users {
		entry, err := t.FindAllow(u.IP)
		if err != nil {
			return err
		}
		if entry != nil {
			if err := t.RemoveAllow(entry.DeviceID); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadUsers is the full reconciliation sweep: fetch both device tables,
// return the queues backed by an allow-list entry as the authoritative
// "currently served" set, and prune allow-list entries with no backing
// queue. The cleanup is one-directional: orphaned queues are left in place.
func (t *Transmitter) ReadUsers() ([]nas.Subscriber, error) {
	log := t.opLog("read_users", 0)

	allowed := map[nas.IPAddr]nas.AllowEntry{}
	allows := t.Allows()
	for allows.Next() {
		e := allows.Entry()
		allowed[e.IP] = e
	}
	if err := allows.Err(); err != nil {
		return nil, err
	}

	var confirmed []nas.Subscriber
	queueIPs := map[nas.IPAddr]struct{}{}
	queues := t.Queues()
	for queues.Next() {
		q := queues.Queue()
		queueIPs[q.IP] = struct{}{}
		if _, ok := allowed[q.IP]; ok {
			confirmed = append(confirmed, q)
		}
	}
	if err := queues.Err(); err != nil {
		return nil, err
	}

	var stale []nas.AllowEntry
	for ip, e := range allowed {
		if _, ok := queueIPs[ip]; !ok {
			stale = append(stale, e)
		}
	}
	if len(stale) > 0 {
		log.Info().Int("stale", len(stale)).Msg("pruning allow-list entries with no backing queue")
		if err := t.RemoveAllows(stale); err != nil {
			return nil, err
		}
	}
	log.Debug().Int("served", len(confirmed)).Msg("sweep complete")
	return confirmed, nil
}

func (t *Transmitter) opLog(op string, uid int64) zerolog.Logger {
	ctx := t.log.With().Str("op", op).Str("sync_id", uuid.NewString())
	if uid != 0 {
		ctx = ctx.Int64("uid", uid)
	}
	return ctx.Logger()
}
