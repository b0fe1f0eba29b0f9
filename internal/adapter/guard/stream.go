package guard

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paddockhq/paddock/internal/adapter/translator"
	"github.com/paddockhq/paddock/internal/core/constants"
	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/core/ports"
)

var newline = []byte("\n")

// streamState tracks one relay from the first upstream chunk to the
// terminal frame.
type streamState struct {
	acc         strings.Builder
	doneReason  string
	lastScanLen int
	chunks      int
	sawDone     bool
}

// RelayResult summarises one relayed response for the caller's logging and
// release paths. Exactly one of the outcome flags is set unless the
// response completed cleanly.
type RelayResult struct {
	Verdict      *domain.ScanResult
	Output       string
	DoneReason   string
	ErrKind      string
	Bytes        int64
	Chunks       int
	Blocked      bool
	TimedOut     bool
	Disconnected bool
	ReadFailed   bool
}

// Completed reports whether the response reached the client intact.
func (r *RelayResult) Completed() bool {
	return !r.Blocked && !r.TimedOut && !r.Disconnected && !r.ReadFailed
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// RelayStream tees the upstream NDJSON stream to the client while scanning
// the accumulated output text. Chunks forward as they arrive; the chunk
// that crosses the scan window is held until the verdict comes back, so a
// blocked stream never leaks the chunk that tipped it.
func (g *Guard) RelayStream(ctx context.Context, w http.ResponseWriter, handle *ports.ResponseHandle, req *translator.GuardedRequest) *RelayResult {
	start := time.Now()
	state := &streamState{}
	res := &RelayResult{}

	g.Publish(domain.GuardEvent{
		Type:      domain.GuardEventStarted,
		Model:     req.Model,
		Kind:      req.Kind,
		Dialect:   req.Dialect,
		Streaming: true,
	})

	writeStreamHeaders(w, req.Dialect)
	rc := http.NewResponseController(w)
	cw := &countingWriter{w: w}

	relayDone := make(chan struct{})
	defer close(relayDone)
	lines, readErrs := g.readLines(handle.Body, relayDone)

	g.runStream(ctx, cw, rc, handle, req, state, res, lines, readErrs)

	res.Bytes = cw.n
	res.Chunks = state.chunks
	res.Output = state.acc.String()
	res.DoneReason = state.doneReason
	g.publishOutcome(req, res, time.Since(start), true)
	return res
}

func (g *Guard) runStream(ctx context.Context, w *countingWriter, rc *http.ResponseController, handle *ports.ResponseHandle, req *translator.GuardedRequest, state *streamState, res *RelayResult, lines <-chan []byte, readErrs <-chan error) {
	var idle *time.Timer
	var idleC <-chan time.Time
	if g.upstreamIdle > 0 {
		idle = time.NewTimer(g.upstreamIdle)
		defer idle.Stop()
		idleC = idle.C
	}

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				g.finishStream(ctx, w, rc, handle, req, state, res, readErrs)
				return
			}
			if idle != nil {
				if !idle.Stop() {
					select {
					case <-idle.C:
					default:
					}
				}
				idle.Reset(g.upstreamIdle)
			}
			if terminal := g.relayChunk(ctx, w, rc, handle, req, state, res, line); terminal {
				return
			}
		case <-ctx.Done():
			g.logger.Debug("Client disconnected mid-stream", "model", req.Model, "chunks", state.chunks)
			g.cancelUpstream(handle, "client disconnected")
			res.Disconnected = true
			res.ErrKind = errKindClientDisconnect
			return
		case <-idleC:
			g.logger.Warn("Upstream stalled mid-stream", "model", req.Model, "idle_timeout", g.upstreamIdle, "chunks", state.chunks)
			g.writeStreamFailure(w, rc, req, domain.ErrKindUpstreamTimeout, "upstream idle timeout exceeded")
			g.cancelUpstream(handle, "idle timeout")
			res.TimedOut = true
			res.ErrKind = domain.ErrKindUpstreamTimeout
			return
		}
	}
}

// relayChunk scans, then forwards, one upstream line. Returns true when the
// stream terminated on this chunk.
func (g *Guard) relayChunk(ctx context.Context, w *countingWriter, rc *http.ResponseController, handle *ports.ResponseHandle, req *translator.GuardedRequest, state *streamState, res *RelayResult, line []byte) bool {
	chunk := translator.ChunkFor(req.Kind)(line)
	if chunk.Text != "" {
		state.acc.WriteString(chunk.Text)
	}
	if chunk.Done {
		state.sawDone = true
		state.doneReason = chunk.DoneReason
	}

	if g.windowCrossed(state) {
		verdict, blocked := g.scanWindow(ctx, req, state)
		if blocked {
			g.writeStreamViolation(w, rc, req, verdict)
			g.cancelUpstream(handle, "output violation")
			res.Blocked = true
			res.Verdict = verdict
			res.ErrKind = domain.ErrKindOutputBlocked
			return true
		}
	}

	if err := g.forwardChunk(w, rc, req, chunk, line); err != nil {
		g.logger.Debug("Client write failed mid-stream", "error", err, "chunks", state.chunks)
		g.cancelUpstream(handle, "client write failure")
		res.Disconnected = true
		res.ErrKind = errKindClientDisconnect
		return true
	}
	state.chunks++
	return false
}

func (g *Guard) windowCrossed(state *streamState) bool {
	if !g.outputEnabled.Load() {
		return false
	}
	return state.acc.Len()-state.lastScanLen >= int(g.windowBytes.Load())
}

// scanWindow runs the output pipeline over the full accumulator, not the
// delta; classifiers need the whole context. The window position advances
// even when the scan fails so a broken scan cannot stall on every chunk.
func (g *Guard) scanWindow(ctx context.Context, req *translator.GuardedRequest, state *streamState) (*domain.ScanResult, bool) {
	text := state.acc.String()
	state.lastScanLen = len(text)
	verdict, _, err := g.cachedScan(ctx, g.output, req.ScanText, text, true)
	if err != nil {
		g.logger.Warn("Windowed output scan failed", "error", err, "accumulated", len(text))
		return nil, false
	}
	return verdict, g.Blocks(verdict)
}

// finalScan runs the EOF verdict over the complete accumulator. Skipped
// when the last windowed scan already covered the full text, so a stream
// never pays twice for one verdict.
func (g *Guard) finalScan(ctx context.Context, req *translator.GuardedRequest, state *streamState) (*domain.ScanResult, bool) {
	if !g.outputEnabled.Load() || state.acc.Len() == 0 {
		return nil, false
	}
	text := state.acc.String()
	if state.lastScanLen == len(text) && state.lastScanLen > 0 {
		return nil, false
	}
	verdict, _, err := g.cachedScan(ctx, g.output, req.ScanText, text, false)
	if err != nil {
		g.logger.Warn("Final output scan failed", "error", err, "accumulated", len(text))
		return nil, false
	}
	return verdict, g.Blocks(verdict)
}

// finishStream handles upstream EOF: the final verdict over the complete
// text, then the held-back terminal framing.
func (g *Guard) finishStream(ctx context.Context, w *countingWriter, rc *http.ResponseController, handle *ports.ResponseHandle, req *translator.GuardedRequest, state *streamState, res *RelayResult, readErrs <-chan error) {
	select {
	case err := <-readErrs:
		g.logger.Warn("Upstream stream ended abnormally", "error", err, "chunks", state.chunks)
		g.writeStreamFailure(w, rc, req, domain.ErrKindUpstreamUnavailable, "upstream connection lost")
		g.cancelUpstream(handle, "stream read failure")
		res.ReadFailed = true
		res.ErrKind = domain.ErrKindUpstreamUnavailable
		return
	default:
	}

	if !state.sawDone {
		g.logger.Debug("Stream ended without a done marker", "model", req.Model, "chunks", state.chunks)
	}

	if verdict, blocked := g.finalScan(ctx, req, state); blocked {
		// Chunks already forwarded cannot be retracted; the terminal
		// frame is what a late verdict can still do.
		g.writeStreamViolation(w, rc, req, verdict)
		_ = handle.Close()
		res.Blocked = true
		res.Verdict = verdict
		res.ErrKind = domain.ErrKindOutputBlocked
		return
	}

	if req.Dialect == domain.DialectOpenAI {
		var frame any
		if req.Kind == domain.KindChat {
			frame = translator.ChatFinishChunk(state.doneReason)
		} else {
			frame = translator.CompletionFinishChunk(state.doneReason)
		}
		if err := translator.WriteSSE(w, frame); err == nil {
			_ = translator.WriteSSEDone(w)
		}
		_ = rc.Flush()
	}
	_ = handle.Close()
}

// forwardChunk writes one chunk in the client's dialect. Native forwards the
// upstream line byte-for-byte; OpenAI wraps the delta in an SSE frame. The
// OpenAI finish frame is deferred to EOF so the final verdict can still veto
// the stream.
func (g *Guard) forwardChunk(w *countingWriter, rc *http.ResponseController, req *translator.GuardedRequest, chunk translator.StreamChunk, line []byte) error {
	if req.Dialect == domain.DialectNative {
		if _, err := w.Write(line); err != nil {
			return err
		}
		if _, err := w.Write(newline); err != nil {
			return err
		}
		return rc.Flush()
	}

	if chunk.Done && chunk.Text == "" {
		return nil
	}
	var frame any
	if req.Kind == domain.KindChat {
		frame = translator.ChatDeltaChunk(chunk.Text)
	} else {
		frame = translator.CompletionDeltaChunk(chunk.Text)
	}
	if err := translator.WriteSSE(w, frame); err != nil {
		return err
	}
	return rc.Flush()
}

// readLines pumps NDJSON lines from the upstream body into a channel. Each
// line is copied out of the scanner's buffer before it crosses goroutines.
// The pump stops at EOF, on a read error, or when the relay signals done.
func (g *Guard) readLines(body io.Reader, done <-chan struct{}) (<-chan []byte, <-chan error) {
	lines := make(chan []byte, streamLineBacklog)
	readErrs := make(chan error, 1)

	go func() {
		defer close(lines)

		buffer := g.bufferPool.Get()
		defer g.bufferPool.Put(buffer)

		scanner := bufio.NewScanner(body)
		scanner.Buffer(*buffer, MaxChunkBytes)
		for scanner.Scan() {
			raw := bytes.TrimSpace(scanner.Bytes())
			if len(raw) == 0 {
				continue
			}
			line := make([]byte, len(raw))
			copy(line, raw)
			select {
			case lines <- line:
			case <-done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			readErrs <- err
		}
	}()

	return lines, readErrs
}

func writeStreamHeaders(w http.ResponseWriter, dialect domain.Dialect) {
	if dialect == domain.DialectOpenAI {
		w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeSSE)
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
	} else {
		w.Header().Set(constants.ContentTypeHeader, constants.ContentTypeNDJSON)
	}
	w.WriteHeader(http.StatusOK)
}

// writeStreamViolation emits the single terminal frame that ends a blocked
// stream, in the client's dialect.
func (g *Guard) writeStreamViolation(w io.Writer, rc *http.ResponseController, req *translator.GuardedRequest, verdict *domain.ScanResult) {
	failed := domain.FailedScannersFrom(verdict)
	if req.Dialect == domain.DialectOpenAI {
		frame := translator.ErrorResponse{Error: translator.ErrorDetail{
			Message:        "response blocked by content policy",
			Type:           domain.ViolationError,
			Code:           domain.ErrKindOutputBlocked,
			FailedScanners: failed,
		}}
		if err := translator.WriteSSE(w, frame); err == nil {
			_ = translator.WriteSSEDone(w)
		}
	} else {
		g.writeTerminalFrame(w, domain.NativeTerminalFrame{
			Done:           true,
			Error:          domain.ViolationError,
			Type:           domain.ErrKindOutputBlocked,
			FailedScanners: failed,
		})
	}
	_ = rc.Flush()
}

// writeStreamFailure ends a stream that died for infrastructure reasons.
func (g *Guard) writeStreamFailure(w io.Writer, rc *http.ResponseController, req *translator.GuardedRequest, kind, message string) {
	if req.Dialect == domain.DialectOpenAI {
		frame := translator.ErrorResponse{Error: translator.ErrorDetail{
			Message: message,
			Type:    "server_error",
			Code:    kind,
		}}
		if err := translator.WriteSSE(w, frame); err == nil {
			_ = translator.WriteSSEDone(w)
		}
	} else {
		g.writeTerminalFrame(w, domain.NativeTerminalFrame{
			Done:  true,
			Error: message,
			Type:  kind,
		})
	}
	_ = rc.Flush()
}

func (g *Guard) writeTerminalFrame(w io.Writer, frame domain.NativeTerminalFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		g.logger.Debug("Failed to marshal terminal frame", "error", err)
		return
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		g.logger.Debug("Failed to write terminal frame", "error", err)
	}
}
