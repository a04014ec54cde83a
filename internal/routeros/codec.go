package routeros

import (
	"bufio"
	"errors"
	"io"
)

var (
	ErrClosed    = errors.New("routeros: connection closed by remote end")
	ErrBadLength = errors.New("routeros: invalid length marker")
)

// codec frames UTF-8 words into the RouterOS variable-length encoding over
// one byte stream. A sentence is a run of words terminated by an empty word.
// Any short read or write means the peer is gone; the connection is dead and
// must be discarded, no partial-frame recovery is attempted.
type codec struct {
	r *bufio.Reader
	w *bufio.Writer
}

func newCodec(rw io.ReadWriter) *codec {
	return &codec{
		r: bufio.NewReader(rw),
		w: bufio.NewWriter(rw),
	}
}

func (c *codec) writeSentence(words []string) error {
	for _, w := range words {
		if err := c.writeWord(w); err != nil {
			return err
		}
	}
	if err := c.writeWord(""); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return wrapStreamErr(err)
	}
	return nil
}

func (c *codec) readSentence() ([]string, error) {
	var words []string
	for {
		w, err := c.readWord()
		if err != nil {
			return nil, err
		}
		if w == "" {
			return words, nil
		}
		words = append(words, w)
	}
}

func (c *codec) writeWord(w string) error {
	if err := c.writeLen(uint32(len(w))); err != nil {
		return err
	}
	if _, err := c.w.WriteString(w); err != nil {
		return wrapStreamErr(err)
	}
	return nil
}

func (c *codec) readWord() (string, error) {
	n, err := c.readLen()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return "", wrapStreamErr(err)
	}
	return string(buf), nil
}

func (c *codec) writeLen(n uint32) error {
	var buf []byte
	switch {
	case n < 0x80:
		buf = []byte{byte(n)}
	case n < 0x4000:
		v := n | 0x8000
		buf = []byte{byte(v >> 8), byte(v)}
	case n < 0x200000:
		v := n | 0xC00000
		buf = []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	case n < 0x10000000:
		v := n | 0xE0000000
		buf = []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
	default:
		buf = []byte{0xF0, byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	}
	if _, err := c.w.Write(buf); err != nil {
		return wrapStreamErr(err)
	}
	return nil
}

// readLen inspects the top bits of the first byte to determine how many
// continuation bytes follow. A first byte with all five marker bits set is
// reserved and rejected as a framing error.
func (c *codec) readLen() (uint32, error) {
	b0, err := c.r.ReadByte()
	if err != nil {
		return 0, wrapStreamErr(err)
	}
	switch {
	case b0&0x80 == 0x00:
		return uint32(b0), nil
	case b0&0xC0 == 0x80:
		rest, err := c.readBytes(1)
		if err != nil {
			return 0, err
		}
		return uint32(b0&^0xC0)<<8 | uint32(rest[0]), nil
	case b0&0xE0 == 0xC0:
		rest, err := c.readBytes(2)
		if err != nil {
			return 0, err
		}
		return uint32(b0&^0xE0)<<16 | uint32(rest[0])<<8 | uint32(rest[1]), nil
	case b0&0xF0 == 0xE0:
		rest, err := c.readBytes(3)
		if err != nil {
			return 0, err
		}
		return uint32(b0&^0xF0)<<24 | uint32(rest[0])<<16 | uint32(rest[1])<<8 | uint32(rest[2]), nil
	case b0&0xF8 == 0xF0:
		rest, err := c.readBytes(4)
		if err != nil {
			return 0, err
		}
		return uint32(rest[0])<<24 | uint32(rest[1])<<16 | uint32(rest[2])<<8 | uint32(rest[3]), nil
	default:
		return 0, ErrBadLength
	}
}

func (c *codec) readBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, wrapStreamErr(err)
	}
	return buf, nil
}

func wrapStreamErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrClosed
	}
	return err
}
