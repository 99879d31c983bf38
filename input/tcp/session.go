package tcp

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tuokri/tklserver/errors"
	"github.com/tuokri/tklserver/registry"
)

var (
	errStopping    = errors.New("listener stopping")
	errLineTooLong = errors.New("frame exceeds maximum line length")
)

// session owns one connection from accept to close.
type session struct {
	input   *Input
	conn    net.Conn
	reader  *bufio.Reader
	decoder Decoder
	logger  *slog.Logger
}

func (i *Input) serve(conn net.Conn) {
	i.sessions.Add(1)
	i.metrics.RecordConnectionOpened()
	defer func() {
		_ = conn.Close()
		i.sessions.Add(-1)
		i.metrics.RecordConnectionClosed()
	}()

	// validated in NewInput
	decoder, _ := NewDecoder(i.encoding)

	s := &session{
		input:   i,
		conn:    conn,
		reader:  bufio.NewReader(conn),
		decoder: decoder,
		logger: i.logger.With(
			"session", uuid.NewString(),
			"remote", conn.RemoteAddr().String(),
		),
	}

	s.logger.Info("Connection opened")
	s.run()
}

// run loops AWAIT_LINE -> ROUTE -> DISPATCH until the connection closes.
func (s *session) run() {
	for {
		frame, err := s.readFrame()

		if len(frame) > 0 && frame[0] == 0x00 {
			s.logger.Info("Connection closed by peer", "reason", "disconnect frame")
			return
		}
		if len(frame) > 0 {
			s.handleFrame(frame)
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			s.logger.Info("Connection closed by peer", "reason", "eof")
		case errors.Is(err, errStopping):
			s.logger.Info("Connection closed", "reason", "shutdown")
		case errors.IsConnectionClosed(err):
			s.logger.Info("Connection closed", "reason", "connection lost", "error", err)
		default:
			s.logger.Warn("Connection closed on read error", "error", err)
		}
		return
	}
}

// readFrame reads through the next '\n'. Reads wake every poll interval to
// check the stop flag; bytes read before a wakeup are kept. On EOF the
// unterminated remainder is returned together with io.EOF.
func (s *session) readFrame() ([]byte, error) {
	var frame []byte
	for {
		if s.input.stopping.Load() {
			return nil, errStopping
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(s.input.pollInterval))
		chunk, err := s.reader.ReadSlice('\n')
		frame = append(frame, chunk...)

		if len(frame) > s.input.maxLineLength {
			return nil, errLineTooLong
		}

		switch {
		case err == nil:
			return frame, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case isTimeout(err):
			continue
		default:
			return frame, err
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// handleFrame decodes a frame, routes it by ident and dispatches the body.
func (s *session) handleFrame(frame []byte) {
	text, err := s.decoder.Decode(frame)
	if err != nil {
		s.logger.Warn("Undecodable frame discarded", "error", err)
		s.input.metrics.RecordLine("undecodable")
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	ident, body := SplitIdent(text)
	dest, ok := s.input.router.Lookup(ident)
	if !ok {
		s.logger.Warn("Line discarded", "ident", ident, "error", errors.ErrUnknownIdent)
		s.input.metrics.RecordLine("unknown_ident")
		return
	}
	s.input.metrics.RecordLine("routed")

	s.dispatch(ident, dest, body)
}

func (s *session) dispatch(ident string, dest registry.Destination, body string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered panic in dispatch", "ident", ident, "panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	ctx := s.input.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.input.dispatcher.Dispatch(ctx, ident, dest, body); err != nil {
		s.logger.Error("Delivery failed, event dropped", "ident", ident, "error", err,
			"class", errors.Classify(err).String())
	}
}

// SplitIdent splits text into its leading registry.IdentLength characters and
// the rest. Text shorter than an ident is returned whole as the ident.
func SplitIdent(text string) (ident, body string) {
	offset := 0
	for n := 0; n < registry.IdentLength; n++ {
		if offset >= len(text) {
			return text, ""
		}
		_, size := utf8.DecodeRuneInString(text[offset:])
		offset += size
	}
	return text[:offset], text[offset:]
}
