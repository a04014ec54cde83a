package nas

import (
	"fmt"
	"strconv"
	"strings"
)

// IPAddr is the 32-bit identity of an IPv4 host. Being a named integer type,
// equality and map-key hashing operate on the integer form, and comparing it
// against any other type is a compile error.
type IPAddr uint32

// ParseIPAddr parses dotted-quad text into an IPAddr.
func ParseIPAddr(s string) (IPAddr, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("nas: invalid ipv4 address %q", s)
	}
	var v uint32
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("nas: invalid ipv4 address %q", s)
		}
		v = v<<8 | uint32(n)
	}
	return IPAddr(v), nil
}

// IPAddrFromUint32 wraps a raw integer address.
func IPAddrFromUint32(v uint32) IPAddr {
	return IPAddr(v)
}

func (a IPAddr) Uint32() uint32 {
	return uint32(a)
}

func (a IPAddr) String() string {
	v := uint32(a)
	return fmt.Sprintf("%d.%d.%d.%d", v>>24&0xff, v>>16&0xff, v>>8&0xff, v&0xff)
}

// Tariff describes a shaping profile in megabit/s. The billing identifier is
// carried along but excluded from equality: the device cannot tell two
// tariffs with identical speed pairs apart.
type Tariff struct {
	ID       int64
	SpeedIn  float64
	SpeedOut float64
}

// TariffKey is the comparable identity of a tariff on the device: the speed
// pair, in order. Swapped in/out values key differently.
type TariffKey struct {
	In  float64
	Out float64
}

func (t Tariff) Key() TariffKey {
	return TariffKey{In: t.SpeedIn, Out: t.SpeedOut}
}

// Equal compares the speed pair only.
func (t Tariff) Equal(other Tariff) bool {
	return t.SpeedIn == other.SpeedIn && t.SpeedOut == other.SpeedOut
}

// IsZero reports the "no service" sentinel.
func (t Tariff) IsZero() bool {
	return t.ID == 0 && t.SpeedIn == 0 && t.SpeedOut == 0
}

func (t Tariff) String() string {
	return fmt.Sprintf("id=%d in=%.2f out=%.2f", t.ID, t.SpeedIn, t.SpeedOut)
}

// Subscriber is the billing-side snapshot of what one subscriber's device
// state should be. QueueRef is the device-assigned identifier of the shaping
// rule, populated once discovered; empty means unknown.
type Subscriber struct {
	UID      int64
	IP       IPAddr
	Tariff   *Tariff
	Active   bool
	QueueRef string
}

// Equal compares uid, ip and tariff. Active and QueueRef are deliberately
// excluded: this is the criterion for deciding whether a discovered device
// rule already matches the desired state.
func (s Subscriber) Equal(other Subscriber) bool {
	if s.UID != other.UID || s.IP != other.IP {
		return false
	}
	if s.Tariff == nil || other.Tariff == nil {
		return s.Tariff == other.Tariff
	}
	return s.Tariff.Equal(*other.Tariff)
}

// SubscriberKey is the comparable set identity used by the reconciliation
// sweep: address plus tariff speed pair.
type SubscriberKey struct {
	IP     IPAddr
	Tariff TariffKey
}

func (s Subscriber) Key() SubscriberKey {
	k := SubscriberKey{IP: s.IP}
	if s.Tariff != nil {
		k.Tariff = s.Tariff.Key()
	}
	return k
}

func (s Subscriber) String() string {
	tariff := "<no service>"
	if s.Tariff != nil {
		tariff = s.Tariff.String()
	}
	return fmt.Sprintf("uid=%d ip=%s tariff=(%s)", s.UID, s.IP, tariff)
}

// AllowEntry is one row of the device's firewall allow-list. DeviceID is
// stored without the vendor's "*" marker.
type AllowEntry struct {
	IP       IPAddr
	DeviceID string
}
