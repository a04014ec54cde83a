package routeros

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/avlasov/nassync/internal/nas"
)

func testConfig() Config {
	return Config{
		Address:      "192.0.2.1",
		Username:     "admin",
		Password:     "secret",
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}.WithDefaults()
}

// script runs a fake device on the far end of a pipe: for every request
// sentence it sends the next scripted batch of reply sentences.
func script(t *testing.T, replies ...[][]string) (*Session, func() [][]string) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	var requests [][]string
	done := make(chan struct{})
	go func() {
		defer close(done)
		c := newCodec(server)
		for _, batch := range replies {
			req, err := c.readSentence()
			if err != nil {
				return
			}
			requests = append(requests, req)
			for _, reply := range batch {
				if err := c.writeSentence(reply); err != nil {
					return
				}
			}
		}
		server.Close()
	}()

	sess := newSession(client, testConfig(), zerolog.Nop())
	return sess, func() [][]string {
		<-done
		return requests
	}
}

func TestExecMergesReplyAttributes(t *testing.T) {
	sess, _ := script(t, [][]string{
		{"!re", "=a=1", "=b="},
		{"!re", "=a=2", "=c=3"},
		{"!done"},
	})
	attrs, err := sess.Exec([]string{"/test/print"})
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if attrs["=a"] != "2" {
		t.Fatalf("later attributes must overwrite earlier ones, got %q", attrs["=a"])
	}
	if attrs["=c"] != "3" {
		t.Fatalf("missing merged attribute, got %v", attrs)
	}
	if _, ok := attrs["=b"]; ok {
		t.Fatalf("empty attribute values must be normalized to absent keys")
	}
}

func TestExecTrapSurfacesDeviceError(t *testing.T) {
	sess, _ := script(t, [][]string{
		{"!trap", "=message=no such item"},
		{"!done"},
	})
	_, err := sess.Exec([]string{"/queue/simple/remove", "=.id=*9"})
	var devErr *nas.DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected DeviceError, got %v", err)
	}
	if devErr.Message != "no such item" {
		t.Fatalf("unexpected device message %q", devErr.Message)
	}
}

func TestExecPeerGoneIsNetError(t *testing.T) {
	sess, _ := script(t, [][]string{}) // peer reads the command, then hangs up
	_, err := sess.Exec([]string{"/test/print"})
	var netErr *nas.NetError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetError, got %v", err)
	}
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed in chain, got %v", err)
	}
}

func TestLoginHandshake(t *testing.T) {
	challenge := []byte{0xde, 0xad, 0xbe, 0xef}
	sess, requests := script(t,
		[][]string{{"!done", "=ret=" + hex.EncodeToString(challenge)}},
		[][]string{{"!done"}},
	)
	if err := sess.Login(); err != nil {
		t.Fatalf("login: %v", err)
	}

	reqs := requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 login sentences, got %d", len(reqs))
	}
	if len(reqs[0]) != 1 || reqs[0][0] != "/login" {
		t.Fatalf("unexpected first login sentence %v", reqs[0])
	}

	h := md5.New()
	h.Write([]byte{0})
	h.Write([]byte("secret"))
	h.Write(challenge)
	want := "=response=00" + hex.EncodeToString(h.Sum(nil))

	second := reqs[1]
	if len(second) != 3 || second[0] != "/login" || second[1] != "=name=admin" {
		t.Fatalf("unexpected second login sentence %v", second)
	}
	if second[2] != want {
		t.Fatalf("bad challenge response: got %q want %q", second[2], want)
	}
}

func TestLoginIsIdempotent(t *testing.T) {
	sess, requests := script(t,
		[][]string{{"!done", "=ret=00"}},
		[][]string{{"!done"}},
	)
	if err := sess.Login(); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := sess.Login(); err != nil {
		t.Fatalf("second login must be a no-op, got %v", err)
	}
	if got := len(requests()); got != 2 {
		t.Fatalf("second login must not touch the wire, saw %d sentences", got)
	}
}

func TestQueryStreamsRows(t *testing.T) {
	sess, _ := script(t, [][]string{
		{"!re", "=x=1"},
		{"!re"},
		{"!re", "=x=2"},
		{"!done"},
	})
	rows := sess.Query([]string{"/test/print"})
	var got []string
	for rows.Next() {
		got = append(got, rows.Attrs()["=x"])
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Fatalf("unexpected rows %v (empty records must be skipped)", got)
	}
	if rows.Next() {
		t.Fatalf("a drained stream must not restart")
	}
}

func TestQueryTrapEndsStreamWithError(t *testing.T) {
	sess, _ := script(t, [][]string{
		{"!re", "=x=1"},
		{"!trap", "=message=interrupted"},
	})
	rows := sess.Query([]string{"/test/print"})
	if !rows.Next() {
		t.Fatalf("expected first row before the trap")
	}
	if rows.Next() {
		t.Fatalf("expected stream to end on trap")
	}
	var devErr *nas.DeviceError
	if !errors.As(rows.Err(), &devErr) {
		t.Fatalf("expected DeviceError, got %v", rows.Err())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	sess, _ := script(t)
	if err := sess.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second close must be a no-op, got %v", err)
	}
}
