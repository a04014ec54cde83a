package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/avlasov/nassync/internal/config"
	"github.com/avlasov/nassync/internal/dialer"
	"github.com/avlasov/nassync/internal/nas"
	"github.com/avlasov/nassync/internal/observability"
)

const usage = `usage: nassync [-config path] <command>

commands:
  check            probe the device, log in, and arp-ping the gateway address
  read             list confirmed subscribers and sweep stale allow entries
  apply <file>     apply a snapshot of subscriber changes from a TOML file
`

func main() {
	configPath := flag.String("config", "nassync.toml", "path to the nassync config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	log := observability.InitLogger("nassync", observability.ProfileRuntime)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nassync: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "nassync: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log zerolog.Logger, args []string) error {
	if len(args) == 0 {
		flag.Usage()
		return fmt.Errorf("missing command")
	}

	conn := dialer.New(cfg.Dialer(), log)
	ctx := context.Background()

	switch args[0] {
	case "check":
		return runCheck(ctx, conn, cfg, log)
	case "read":
		return runRead(ctx, conn)
	case "apply":
		if len(args) < 2 {
			return fmt.Errorf("apply: missing snapshot file")
		}
		return runApply(ctx, conn, args[1], log)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func runCheck(ctx context.Context, conn *dialer.Connector, cfg config.Config, log zerolog.Logger) error {
	h, err := conn.Connect(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	stats, err := h.ArpPing(cfg.NAS.Address, 3)
	if err != nil {
		return err
	}
	if stats == nil {
		log.Warn().Str("host", cfg.NAS.Address).Msg("no arp entry for host")
		fmt.Printf("%s: reachable, no arp entry\n", cfg.NAS.Address)
		return nil
	}
	fmt.Printf("%s: sent=%d received=%d\n", cfg.NAS.Address, stats.Sent, stats.Received)
	return nil
}

func runRead(ctx context.Context, conn *dialer.Connector) error {
	return conn.WithTransmitter(ctx, func(t nas.Transmitter) error {
		users, err := t.ReadUsers()
		if err != nil {
			return err
		}
		for _, u := range users {
			fmt.Printf("uid=%d ip=%s ref=%s\n", u.UID, u.IP, u.QueueRef)
		}
		fmt.Printf("%d subscribers\n", len(users))
		return nil
	})
}

// snapshot is the on-disk change set consumed by the apply command.
type snapshot struct {
	Subscribers []snapshotEntry `toml:"subscriber"`
}

type snapshotEntry struct {
	Op       string  `toml:"op"`
	UID      int64   `toml:"uid"`
	IP       string  `toml:"ip"`
	Active   bool    `toml:"active"`
	TariffID int64   `toml:"tariff_id"`
	SpeedIn  float64 `toml:"speed_in"`
	SpeedOut float64 `toml:"speed_out"`
}

func runApply(ctx context.Context, conn *dialer.Connector, path string, log zerolog.Logger) error {
	var snap snapshot
	if _, err := toml.DecodeFile(path, &snap); err != nil {
		return fmt.Errorf("apply: %w", err)
	}

	adds := make([]nas.Subscriber, 0, len(snap.Subscribers))
	updates := make([]nas.Subscriber, 0, len(snap.Subscribers))
	removals := make([]nas.Subscriber, 0)
	for i, e := range snap.Subscribers {
		user, err := e.subscriber()
		if err != nil {
			return fmt.Errorf("apply: entry %d: %w", i, err)
		}
		switch e.Op {
		case "add":
			adds = append(adds, user)
		case "update":
			updates = append(updates, user)
		case "remove":
			removals = append(removals, user)
		default:
			return fmt.Errorf("apply: entry %d: unknown op %q", i, e.Op)
		}
	}

	return conn.WithTransmitter(ctx, func(t nas.Transmitter) error {
		if len(adds) > 0 {
			t.AddUsers(adds)
		}
		for _, u := range updates {
			if err := t.UpdateUser(u); err != nil {
				return err
			}
		}
		if len(removals) > 0 {
			if err := t.RemoveUsers(removals); err != nil {
				return err
			}
		}
		log.Info().
			Int("added", len(adds)).
			Int("updated", len(updates)).
			Int("removed", len(removals)).
			Msg("snapshot applied")
		return nil
	})
}

func (e snapshotEntry) subscriber() (nas.Subscriber, error) {
	ip, err := nas.ParseIPAddr(e.IP)
	if err != nil {
		return nas.Subscriber{}, err
	}
	user := nas.Subscriber{
		UID:    e.UID,
		IP:     ip,
		Active: e.Active,
	}
	if e.TariffID != 0 || e.SpeedIn != 0 || e.SpeedOut != 0 {
		user.Tariff = &nas.Tariff{
			ID:       e.TariffID,
			SpeedIn:  e.SpeedIn,
			SpeedOut: e.SpeedOut,
		}
	}
	return user, nil
}
