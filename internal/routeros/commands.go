package routeros

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/avlasov/nassync/internal/nas"
)

// DefaultAllowList is the firewall address list gating subscriber traffic
// when no list name is configured.
const DefaultAllowList = "UsersAllowed"

// Queue discipline and burst applied to every shaping rule.
const (
	queueDiscipline = "MikroBILL_SFQ/MikroBILL_SFQ"
	queueBurstTime  = "1/1"
)

// Conn is the command execution surface of a session. *Session implements
// it; tests substitute a scripted device.
type Conn interface {
	Exec(words []string) (Attrs, error)
	Query(words []string) Rows
}

// Transmitter drives one RouterOS device: the low-level queue/address-list
// command layer plus the reconciliation contract on top of it. It holds no
// state across calls besides the connection, so any failed invocation can be
// retried by the next triggering event with no cleanup.
type Transmitter struct {
	c        Conn
	listName string
	log      zerolog.Logger
}

var _ nas.Transmitter = (*Transmitter)(nil)

// New wraps an authenticated session. An empty listName selects
// DefaultAllowList.
func New(c Conn, listName string, log zerolog.Logger) *Transmitter {
	if listName == "" {
		listName = DefaultAllowList
	}
	return &Transmitter{c: c, listName: listName, log: log}
}

// FindQueue looks a shaping rule up by name. Absent queues and rows that do
// not decode into a subscriber shape both return nil.
func (t *Transmitter) FindQueue(name string) (*nas.Subscriber, error) {
	attrs, err := t.c.Exec([]string{"/queue/simple/print", "?name=" + name})
	if err != nil {
		return nil, err
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	sub, err := parseShape(attrs)
	if err != nil {
		t.log.Warn().Err(err).Str("queue", name).Msg("unparsable queue record")
		return nil, nil
	}
	return &sub, nil
}

// AddQueue inserts a shaping rule for the subscriber. A snapshot without a
// tariff never results in a queue, so it is a no-op here.
func (t *Transmitter) AddQueue(user nas.Subscriber) error {
	if user.Tariff == nil {
		return nil
	}
	_, err := t.c.Exec([]string{
		"/queue/simple/add",
		"=name=" + queueName(user.UID),
		"=target=" + user.IP.String(),
		"=max-limit=" + formatRate(*user.Tariff),
		"=queue=" + queueDiscipline,
		"=burst-time=" + queueBurstTime,
	})
	return err
}

// RemoveQueue looks the subscriber's queue up by derived name and removes it
// by device identifier. An absent queue is a silent no-op.
func (t *Transmitter) RemoveQueue(user nas.Subscriber) error {
	q, err := t.FindQueue(queueName(user.UID))
	if err != nil {
		return err
	}
	if q == nil || !validQueueRef(q.QueueRef) {
		return nil
	}
	_, err = t.c.Exec([]string{"/queue/simple/remove", "=.id=" + q.QueueRef})
	return err
}

// RemoveQueues bulk-removes shaping rules by device identifier.
func (t *Transmitter) RemoveQueues(refs []string) error {
	if len(refs) == 0 {
		return nil
	}
	_, err := t.c.Exec([]string{"/queue/simple/remove", "=numbers=" + strings.Join(refs, ",")})
	return err
}

// UpdateQueue rewrites the subscriber's shaping rule, creating it when the
// derived name finds nothing.
func (t *Transmitter) UpdateQueue(user nas.Subscriber) error {
	if user.Tariff == nil {
		return nil
	}
	q, err := t.FindQueue(queueName(user.UID))
	if err != nil {
		return err
	}
	if q == nil {
		return t.AddQueue(user)
	}
	words := []string{"/queue/simple/set"}
	if validQueueRef(q.QueueRef) {
		words = append(words, "=.id="+q.QueueRef)
	}
	words = append(words,
		"=name="+queueName(user.UID),
		"=max-limit="+formatRate(*user.Tariff),
		"=target="+user.IP.String(),
		"=queue="+queueDiscipline,
		"=burst-time="+queueBurstTime,
	)
	_, err = t.c.Exec(words)
	return err
}

// Queues streams every shaping rule as a decoded subscriber shape. Rows that
// fail to decode (foreign queue names, malformed speeds) are skipped, not
// fatal to the stream.
func (t *Transmitter) Queues() *QueueStream {
	return &QueueStream{
		rows: t.c.Query([]string{"/queue/simple/print", "=detail"}),
		log:  t.log,
	}
}

// QueueStream is a finite, non-restartable iterator over decoded queues.
type QueueStream struct {
	rows Rows
	cur  nas.Subscriber
	log  zerolog.Logger
}

func (q *QueueStream) Next() bool {
	for q.rows.Next() {
		sub, err := parseShape(q.rows.Attrs())
		if err != nil {
			q.log.Debug().Err(err).Msg("skipping unparsable queue row")
			continue
		}
		q.cur = sub
		return true
	}
	return false
}

func (q *QueueStream) Queue() nas.Subscriber {
	return q.cur
}

func (q *QueueStream) Err() error {
	return q.rows.Err()
}

// AddAllow inserts the address into the allow-list.
func (t *Transmitter) AddAllow(ip nas.IPAddr) error {
	_, err := t.c.Exec([]string{
		"/ip/firewall/address-list/add",
		"=list=" + t.listName,
		"=address=" + ip.String(),
	})
	return err
}

// RemoveAllow deletes one allow-list row by device identifier.
func (t *Transmitter) RemoveAllow(deviceID string) error {
	_, err := t.c.Exec([]string{
		"/ip/firewall/address-list/remove",
		"=.id=*" + strings.ReplaceAll(deviceID, "*", ""),
	})
	return err
}

// RemoveAllows bulk-deletes allow-list rows.
func (t *Transmitter) RemoveAllows(entries []nas.AllowEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, "*"+e.DeviceID)
	}
	_, err := t.c.Exec([]string{
		"/ip/firewall/address-list/remove",
		"=numbers=" + strings.Join(ids, ","),
	})
	return err
}

// FindAllow queries the allow-list by address. The device reports "not
// found" as a single empty record, which surfaces here as (nil, nil).
func (t *Transmitter) FindAllow(ip nas.IPAddr) (*nas.AllowEntry, error) {
	attrs, err := t.c.Exec([]string{
		"/ip/firewall/address-list/print", "where",
		"?list=" + t.listName,
		"?address=" + ip.String(),
	})
	if err != nil {
		return nil, err
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	return &nas.AllowEntry{
		IP:       ip,
		DeviceID: strings.ReplaceAll(attrs["=.id"], "*", ""),
	}, nil
}

// Allows streams the static (non-dynamic) entries of the allow-list.
func (t *Transmitter) Allows() *AllowStream {
	return &AllowStream{
		rows: t.c.Query([]string{
			"/ip/firewall/address-list/print", "where",
			"?list=" + t.listName,
			"?dynamic=no",
		}),
		log: t.log,
	}
}

// AllowStream is a finite, non-restartable iterator over allow-list rows.
type AllowStream struct {
	rows Rows
	cur  nas.AllowEntry
	log  zerolog.Logger
}

func (a *AllowStream) Next() bool {
	for a.rows.Next() {
		attrs := a.rows.Attrs()
		ip, err := nas.ParseIPAddr(attrs["=address"])
		if err != nil {
			a.log.Debug().Err(err).Msg("skipping unparsable allow-list row")
			continue
		}
		a.cur = nas.AllowEntry{
			IP:       ip,
			DeviceID: strings.ReplaceAll(attrs["=.id"], "*", ""),
		}
		return true
	}
	return false
}

func (a *AllowStream) Entry() nas.AllowEntry {
	return a.cur
}

func (a *AllowStream) Err() error {
	return a.rows.Err()
}

// PingStats is the cumulative result of an ARP-pinned ping run.
type PingStats struct {
	Received int
	Sent     int
}

// ArpPing resolves the ARP-visible interface for the host and probes it with
// an ARP-pinned ping at a fixed short interval. A host with no ARP entry at
// all returns (nil, nil).
func (t *Transmitter) ArpPing(host string, count int) (*PingStats, error) {
	attrs, err := t.c.Exec([]string{"/ip/arp/print", "?address=" + host})
	if err != nil {
		return nil, err
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	iface := attrs["=interface"]

	attrs, err = t.c.Exec([]string{
		"/ping",
		"=address=" + host,
		"=arp-ping=yes",
		"=interval=100ms",
		"=count=" + strconv.Itoa(count),
		"=interface=" + iface,
	})
	if err != nil {
		return nil, err
	}
	// Merged replies keep the last row, which carries the cumulative totals.
	received, _ := strconv.Atoi(attrs["=received"])
	sent, _ := strconv.Atoi(attrs["=sent"])
	return &PingStats{Received: received, Sent: sent}, nil
}

func validQueueRef(ref string) bool {
	return ref != "" && ref != "0"
}
