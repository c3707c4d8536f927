package stdio

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/viant/mcp-bridge/fault"
)

const defaultSubscriberBuffer = 64

// maxFrameBytes bounds a single inbound frame. A line growing past it is
// discarded to the next newline, like any other malformed frame, so a
// misbehaving subprocess cannot grow the reader without bound.
const maxFrameBytes = 8 << 20

// Framer reads and writes newline-delimited JSON messages over a subprocess's
// standard streams. The write side is serialized: each message is marshaled
// and flushed in a single Write call under a mutex. The read side is a single
// pump started with Run that decodes lines and fans them out to every
// subscriber; subscriber channels are closed when the stream ends.
type Framer struct {
	writer  io.Writer
	reader  *bufio.Reader
	logger  *slog.Logger
	writeMu sync.Mutex

	subMu  sync.Mutex
	subs   []chan *Message
	closed bool
}

// NewFramer creates a framer over the subprocess output (reader) and input
// (writer) streams.
func NewFramer(reader io.Reader, writer io.Writer, logger *slog.Logger) *Framer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Framer{
		writer: writer,
		reader: bufio.NewReader(reader),
		logger: logger,
	}
}

// Send marshals message, appends the newline terminator and writes the frame
// atomically with respect to other senders.
func (f *Framer) Send(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fault.Wrap(fault.KindProtocol, "failed to encode frame", err)
	}
	frame := append(data, '\n')
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if _, err := f.writer.Write(frame); err != nil {
		return fault.Wrap(fault.KindTransport, "failed to write frame", err)
	}
	return nil
}

// Subscribe registers a consumer of the decoded message stream. Every
// subscriber receives every message. The returned channel is closed once the
// underlying stream reaches end-of-stream; subscribing after that point
// returns an already-closed channel.
func (f *Framer) Subscribe() <-chan *Message {
	ch := make(chan *Message, defaultSubscriberBuffer)
	f.subMu.Lock()
	defer f.subMu.Unlock()
	if f.closed {
		close(ch)
		return ch
	}
	f.subs = append(f.subs, ch)
	return ch
}

// Run pumps the read side until end-of-stream. Malformed or oversized lines
// are logged and skipped; they never terminate the stream or affect other
// messages. Run returns after closing all subscriber channels.
func (f *Framer) Run() {
	defer f.closeSubscribers()
	for {
		line, err := f.readFrame()
		if len(line) > 0 {
			f.dispatch(line)
		}
		if err != nil {
			if err != io.EOF {
				f.logger.Warn("subprocess stream read failed", "error", err)
			}
			return
		}
	}
}

// readFrame reads one newline-terminated frame, bounding its size at
// maxFrameBytes. An oversized line is consumed to its terminator and dropped,
// reported with the number of bytes discarded.
func (f *Framer) readFrame() ([]byte, error) {
	var frame []byte
	for {
		chunk, err := f.reader.ReadSlice('\n')
		frame = append(frame, chunk...)
		switch {
		case err == bufio.ErrBufferFull:
			if len(frame) > maxFrameBytes {
				dropped, discardErr := f.discardLine(len(frame))
				f.logger.Warn("discarding oversized frame", "size", dropped, "limit", maxFrameBytes)
				return nil, discardErr
			}
		case err != nil:
			return frame, err
		default:
			return frame, nil
		}
	}
}

// discardLine consumes the remainder of an oversized line and returns the
// total number of bytes dropped, including those already accumulated.
func (f *Framer) discardLine(accumulated int) (int, error) {
	total := accumulated
	for {
		chunk, err := f.reader.ReadSlice('\n')
		total += len(chunk)
		if err == bufio.ErrBufferFull {
			continue
		}
		return total, err
	}
}

func (f *Framer) dispatch(line []byte) {
	trimmed := trimFrame(line)
	if len(trimmed) == 0 {
		return
	}
	message, err := decodeMessage(trimmed)
	if err != nil {
		f.logger.Warn("discarding malformed frame", "error", err, "size", len(trimmed))
		return
	}
	f.subMu.Lock()
	subs := f.subs
	f.subMu.Unlock()
	for _, ch := range subs {
		ch <- message
	}
}

func (f *Framer) closeSubscribers() {
	f.subMu.Lock()
	defer f.subMu.Unlock()
	f.closed = true
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}

func trimFrame(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
