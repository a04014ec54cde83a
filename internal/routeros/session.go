package routeros

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/avlasov/nassync/internal/nas"
)

// DefaultPort is the RouterOS API port used when the config leaves it unset.
const DefaultPort = 8728

// Attrs is one decoded reply record. Keys keep their leading "=" or "?"
// marker ("=ret", "=.id", "=message"); empty values are normalized to an
// absent key.
type Attrs map[string]string

// Config describes one session. Timeouts are enforced with socket deadlines
// around each command, since the codec itself blocks until a full sentence
// is available.
type Config struct {
	Address        string
	Port           int
	Username       string
	Password       string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 15 * time.Second
	}
	return c
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// Session owns exactly one connection to the device. Command execution is
// synchronous blocking I/O with a single outstanding command: a command's
// full reply sequence is consumed before the next command is written.
// A session is created per synchronization attempt and torn down when the
// caller is done; there is no pooling or reuse across attempts.
type Session struct {
	cfg      Config
	conn     net.Conn
	c        *codec
	log      zerolog.Logger
	loggedIn bool
	closed   bool
	tag      uint64 // reserved for tagged replies; current usage is single-outstanding-command
}

// Dial opens the TCP connection. It does not log in; see Login.
func Dial(ctx context.Context, cfg Config, log zerolog.Logger) (*Session, error) {
	cfg = cfg.WithDefaults()
	d := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", cfg.addr())
	if err != nil {
		return nil, &nas.NetError{Op: "dial " + cfg.addr(), Err: err}
	}
	return newSession(conn, cfg, log), nil
}

func newSession(conn net.Conn, cfg Config, log zerolog.Logger) *Session {
	return &Session{
		cfg:  cfg,
		conn: conn,
		c:    newCodec(conn),
		log:  log.With().Str("nas", cfg.addr()).Logger(),
	}
}

// Login performs the challenge handshake. Calling it on an authenticated
// session is a no-op.
func (s *Session) Login() error {
	if s.loggedIn {
		return nil
	}
	reply, err := s.Exec([]string{"/login"})
	if err != nil {
		return err
	}
	chal, err := hex.DecodeString(reply["=ret"])
	if err != nil {
		return &nas.NetError{Op: "login", Err: fmt.Errorf("bad challenge %q: %w", reply["=ret"], err)}
	}

	h := md5.New()
	h.Write([]byte{0})
	h.Write([]byte(s.cfg.Password))
	h.Write(chal)

	_, err = s.Exec([]string{
		"/login",
		"=name=" + s.cfg.Username,
		"=response=00" + hex.EncodeToString(h.Sum(nil)),
	})
	if err != nil {
		return err
	}
	s.loggedIn = true
	s.log.Debug().Str("user", s.cfg.Username).Msg("session authenticated")
	return nil
}

// Exec writes one command sentence and merges every attribute of the reply
// stream into a single record. Later attributes with the same key overwrite
// earlier ones. A !trap reply surfaces as *nas.DeviceError after the stream
// is drained to !done.
func (s *Session) Exec(words []string) (Attrs, error) {
	if err := s.send(words); err != nil {
		return nil, err
	}
	out := Attrs{}
	var devErr error
	for {
		sentence, err := s.receive()
		if err != nil {
			return nil, err
		}
		if len(sentence) == 0 {
			continue
		}
		switch sentence[0] {
		case "!done":
			mergeAttrs(out, sentence[1:])
			if devErr != nil {
				return nil, devErr
			}
			return out, nil
		case "!trap", "!fatal":
			a := parseAttrs(sentence[1:])
			devErr = &nas.DeviceError{Message: a["=message"]}
		case "!re":
			mergeAttrs(out, sentence[1:])
		}
	}
}

// Query writes one command sentence and returns the reply rows as a finite,
// non-restartable stream. Re-reading requires issuing a fresh command.
func (s *Session) Query(words []string) Rows {
	st := &Stream{s: s}
	if err := s.send(words); err != nil {
		st.err = err
		st.done = true
	}
	return st
}

// Rows is a finite stream of reply records, scanner-style: call Next until
// it returns false, then check Err.
type Rows interface {
	Next() bool
	Attrs() Attrs
	Err() error
}

// Stream iterates the !re records of one command. A !trap terminates the
// stream with a *nas.DeviceError instead of producing further rows.
type Stream struct {
	s     *Session
	attrs Attrs
	err   error
	done  bool
}

func (st *Stream) Next() bool {
	if st.done {
		return false
	}
	for {
		sentence, err := st.s.receive()
		if err != nil {
			st.err = err
			st.done = true
			return false
		}
		if len(sentence) == 0 {
			continue
		}
		switch sentence[0] {
		case "!done":
			st.done = true
			return false
		case "!trap", "!fatal":
			a := parseAttrs(sentence[1:])
			st.err = &nas.DeviceError{Message: a["=message"]}
			st.done = true
			return false
		case "!re":
			a := parseAttrs(sentence[1:])
			if len(a) == 0 {
				continue
			}
			st.attrs = a
			return true
		}
	}
}

func (st *Stream) Attrs() Attrs {
	return st.attrs
}

func (st *Stream) Err() error {
	return st.err
}

func (s *Session) send(words []string) error {
	if len(words) == 0 {
		return &nas.NetError{Op: "send", Err: fmt.Errorf("empty sentence")}
	}
	if s.cfg.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if err := s.c.writeSentence(words); err != nil {
		return &nas.NetError{Op: "write " + words[0], Err: err}
	}
	return nil
}

func (s *Session) receive() ([]string, error) {
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	sentence, err := s.c.readSentence()
	if err != nil {
		return nil, &nas.NetError{Op: "read reply", Err: err}
	}
	return sentence, nil
}

// Close tears the connection down. Safe to call more than once and on every
// exit path, including mid-protocol failures.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.loggedIn = false
	return s.conn.Close()
}

func parseAttrs(words []string) Attrs {
	a := Attrs{}
	mergeAttrs(a, words)
	return a
}

func mergeAttrs(a Attrs, words []string) {
	for _, w := range words {
		j := strings.Index(w[1:], "=")
		if j == -1 {
			continue
		}
		key, val := w[:j+1], w[j+2:]
		if val == "" {
			continue
		}
		a[key] = val
	}
}
