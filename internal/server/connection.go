package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"

	"github.com/xpecel/kedung/internal/dispatch"
	"github.com/xpecel/kedung/internal/wire"
	"github.com/xpecel/kedung/internal/wireerr"
)

// handleConnection runs one connection's framing/dispatch/reply loop. Any
// I/O error closes the connection; the per-connection codec residual and
// read buffer are discarded with it. Frames are processed, and replies
// written, in the order they were fully received.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	d := dispatch.New(s.store)
	codec := wire.NewCodec(s.PrefixWidth)
	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := conn.Read(buf)
		if err != nil {
			if err != io.EOF {
				s.Logger.Info().Err(err).Msg("connection read error, closing")
			}
			return
		}

		frames, err := codec.Feed(buf[:n])
		if err != nil {
			// A malformed length prefix never closes the connection — see
			// Codec.Feed's stall behavior — this path just drops the read.
			s.Logger.Warn().Err(err).Msg("frame decode error")
			continue
		}

		for _, frame := range frames {
			reply := s.dispatchFrame(d, frame)

			encoded, err := json.Marshal(reply)
			if err != nil {
				s.Logger.Warn().Err(err).Msg("failed to encode reply")
				continue
			}

			framed, err := codec.Encode(encoded)
			if err != nil {
				s.Logger.Warn().Err(err).Msg("failed to frame reply")
				continue
			}

			if _, err := conn.Write(framed); err != nil {
				s.Logger.Info().Err(err).Msg("connection write error, closing")
				return
			}
		}
	}
}

// dispatchFrame JSON-decodes a single frame and dispatches it, serializing
// a *wireerr.CommandError raised by Handle into the same {"errors": [...]}
// envelope shape used for a frame that fails to decode at all (spec.md §7).
func (s *Server) dispatchFrame(d *dispatch.Dispatcher, frame []byte) map[string]any {
	var envelope map[string]any
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return map[string]any{
			"errors": []string{"Tidak dapat menguraikan data yang dikirim!"},
		}
	}

	reply, err := d.Handle(envelope)
	if err != nil {
		var cmdErr *wireerr.CommandError
		if errors.As(err, &cmdErr) {
			s.Logger.Warn().Err(err).Msg("command error")
			return map[string]any{
				"errors":                 cmdErr.Messages,
				dispatch.InjectedDataKey: cmdErr.InjectedData,
			}
		}
		return map[string]any{"errors": []string{err.Error()}}
	}
	return reply
}
