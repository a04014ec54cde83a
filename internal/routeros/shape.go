package routeros

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/avlasov/nassync/internal/nas"
)

// Queue names are derived from the subscriber uid, never free-form, so an
// existing queue can always be located again from the uid alone.
const queueNamePrefix = "uid"

func queueName(uid int64) string {
	return queueNamePrefix + strconv.FormatInt(uid, 10)
}

func parseQueueName(name string) (int64, error) {
	rest, ok := strings.CutPrefix(name, queueNamePrefix)
	if !ok {
		return 0, fmt.Errorf("routeros: queue name %q lacks %q prefix", name, queueNamePrefix)
	}
	uid, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("routeros: queue name %q is not uid-derived", name)
	}
	return uid, nil
}

// formatRate renders the device's <download>/<upload> pair. Note the swap:
// the device takes (speedOut, speedIn) relative to the tariff field order.
func formatRate(t nas.Tariff) string {
	return fmt.Sprintf("%.3fM/%.3fM", t.SpeedOut, t.SpeedIn)
}

// parseSpeed normalizes a device rate value to megabit/s. "10M" is 10,
// "500k" is 0.5, and a bare number is bits scaled down by 10^6.
func parseSpeed(text string) (float64, error) {
	switch {
	case strings.HasSuffix(text, "M"):
		return parseSpeedDigits(text[:len(text)-1], 1)
	case strings.HasSuffix(text, "k"):
		return parseSpeedDigits(text[:len(text)-1], 1.0/1000)
	default:
		stripped := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) {
				return -1
			}
			return r
		}, text)
		return parseSpeedDigits(stripped, 1.0/1e6)
	}
}

func parseSpeedDigits(digits string, scale float64) (float64, error) {
	if digits == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, fmt.Errorf("routeros: bad speed value %q", digits)
	}
	return v * scale, nil
}

// parseShape rebuilds a subscriber snapshot from one queue record: uid from
// the encoded name, tariff from the parsed speed pair, active flag from the
// disabled attribute, and the device identifier as QueueRef. The target
// address carries a /32 suffix on the wire.
func parseShape(a Attrs) (nas.Subscriber, error) {
	speeds := strings.SplitN(a["=max-limit"], "/", 2)
	if len(speeds) != 2 {
		return nas.Subscriber{}, fmt.Errorf("routeros: bad max-limit %q", a["=max-limit"])
	}
	speedOut, err := parseSpeed(speeds[0])
	if err != nil {
		return nas.Subscriber{}, err
	}
	speedIn, err := parseSpeed(speeds[1])
	if err != nil {
		return nas.Subscriber{}, err
	}

	uid, err := parseQueueName(a["=name"])
	if err != nil {
		return nas.Subscriber{}, err
	}

	target := a["=target"]
	if i := strings.IndexByte(target, '/'); i >= 0 {
		target = target[:i]
	}
	ip, err := nas.ParseIPAddr(target)
	if err != nil {
		return nas.Subscriber{}, err
	}

	tariff := nas.Tariff{SpeedIn: speedIn, SpeedOut: speedOut}
	return nas.Subscriber{
		UID:      uid,
		IP:       ip,
		Tariff:   &tariff,
		Active:   a["=disabled"] == "false",
		QueueRef: a["=.id"],
	}, nil
}
