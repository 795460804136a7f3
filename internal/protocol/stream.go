package protocol

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/Cyclone1070/coda/internal/logger"
	"go.lsp.dev/jsonrpc2"
)

// Framing selects how messages are delimited on the wire.
type Framing int

const (
	// FramingHeader uses Content-Length headers, as LSP does.
	FramingHeader Framing = iota
	// FramingLine uses one JSON object per line, as MCP stdio does.
	FramingLine
)

func (f Framing) String() string {
	switch f {
	case FramingHeader:
		return "header"
	case FramingLine:
		return "line"
	default:
		return fmt.Sprintf("framing(%d)", int(f))
	}
}

// NewStream wraps rwc in a jsonrpc2 stream using the given framing.
func NewStream(rwc io.ReadWriteCloser, framing Framing) jsonrpc2.Stream {
	if framing == FramingLine {
		return NewLineStream(rwc)
	}
	return jsonrpc2.NewStream(rwc)
}

type lineStream struct {
	conn io.ReadWriteCloser
	in   *bufio.Reader
	log  *slog.Logger
}

// NewLineStream returns a stream of newline-delimited JSON-RPC messages.
// Lines that are empty or not JSON objects are skipped.
func NewLineStream(rwc io.ReadWriteCloser) jsonrpc2.Stream {
	return &lineStream{
		conn: rwc,
		in:   bufio.NewReaderSize(rwc, 64*1024),
		log:  logger.WithComponent("protocol"),
	}
}

func (s *lineStream) Read(ctx context.Context) (jsonrpc2.Message, int64, error) {
	var total int64
	for {
		select {
		case <-ctx.Done():
			return nil, total, ctx.Err()
		default:
		}

		line, err := s.in.ReadBytes('\n')
		total += int64(len(line))
		line = bytes.TrimSpace(line)

		if len(line) > 0 {
			if line[0] != '{' {
				s.log.Debug("skipping non-JSON output line", "line", truncate(string(line), 200))
			} else if msg, derr := jsonrpc2.DecodeMessage(line); derr != nil {
				s.log.Warn("skipping undecodable message", "error", derr)
			} else {
				return msg, total, nil
			}
		}
		if err != nil {
			return nil, total, err
		}
	}
}

func (s *lineStream) Write(ctx context.Context, msg jsonrpc2.Message) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("marshaling message: %w", err)
	}
	data = append(data, '\n')

	n, err := s.conn.Write(data)
	if err != nil {
		return int64(n), fmt.Errorf("write to stream: %w", err)
	}
	return int64(n), nil
}

func (s *lineStream) Close() error {
	return s.conn.Close()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
