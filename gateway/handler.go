package gateway

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"time"

	"github.com/threelight/redisgate/dispatch"
	"github.com/threelight/redisgate/errors"
	"github.com/threelight/redisgate/protocol"
)

// handleConn drives one connection: obtain a dedicated backend session,
// then read newline-delimited requests until the peer closes or a read
// error occurs. The buffered reader carries bytes received past a
// delimiter into the next message, so any number of requests may arrive
// back to back.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	logger := s.logger.With("conn_id", connID())
	logger.Debug("connection accepted")

	session, err := s.client.Session(ctx)
	if err != nil {
		logger.Error("no backend session for connection", "error", err)
		_, _ = conn.Write(protocol.EncodeResponse(protocol.Error(err.Error())))
		return
	}
	defer session.Close()

	dispatcher := dispatch.NewDispatcher(session, logger)
	reader := bufio.NewReader(conn)

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			// EOF with a partial trailing fragment: the message was never
			// terminated, so it is not a request.
			if err != io.EOF {
				logger.Debug("read failed", "error", err)
			}
			logger.Debug("connection closed")
			return
		}

		resp := s.handleRequest(ctx, dispatcher, bytes.TrimSpace(line))
		if _, err := conn.Write(protocol.EncodeResponse(resp)); err != nil {
			logger.Debug("write failed", "error", err)
			return
		}
	}
}

// handleRequest runs one request through the pipeline: decode, key grammar,
// schema validation, dispatch. Every failure class maps to an Error
// response; none of them end the connection.
func (s *Server) handleRequest(ctx context.Context, dispatcher *dispatch.Dispatcher, line []byte) protocol.Response {
	start := time.Now()

	req, err := protocol.DecodeRequest(line)
	if err != nil {
		s.reject("decode")
		return protocol.Error(protocol.MsgInvalidRequest)
	}

	logger := s.logger.With("action", string(req.Action), "key", req.Key)

	if !s.grammar.IsValid(req.Key) {
		s.reject("grammar")
		logger.Debug("key rejected")
		return s.finish(req, start, protocol.Error(protocol.MsgInvalidKey))
	}

	if req.HasValue() {
		if err := s.schemas.Validate(req.Key, req.Value); err != nil {
			s.reject("schema")
			logger.Debug("value rejected", "error", err)
			return s.finish(req, start, protocol.Error(err.Error()))
		}
	}

	result, err := dispatcher.Execute(ctx, req)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidAction) {
			s.reject("action")
			return s.finish(req, start, protocol.Error(protocol.MsgInvalidAction))
		}
		if s.metrics != nil {
			s.metrics.BackendErrors.Inc()
		}
		logger.Warn("backend operation failed", "error", err)
		return s.finish(req, start, protocol.Error(err.Error()))
	}

	if !result.Published {
		if s.metrics != nil {
			s.metrics.NotificationsLost.Inc()
		}
		return s.finish(req, start,
			protocol.Ok(protocol.MsgCompleted+"; notification publish failed: "+result.PublishErr.Error()))
	}

	return s.finish(req, start, protocol.Ok(protocol.MsgCompleted))
}

// finish records per-request metrics and passes the response through.
func (s *Server) finish(req protocol.Request, start time.Time, resp protocol.Response) protocol.Response {
	if s.metrics != nil {
		s.metrics.RequestsTotal.WithLabelValues(string(req.Action), resp.Status).Inc()
		s.metrics.RequestDuration.Observe(time.Since(start).Seconds())
	}
	return resp
}

func (s *Server) reject(class string) {
	if s.metrics != nil {
		s.metrics.RejectionsTotal.WithLabelValues(class).Inc()
	}
}
