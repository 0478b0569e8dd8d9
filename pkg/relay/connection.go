package relay

import (
	"compress/flate"
	"context"
	"fmt"
	"io"
	"net"

	"github.com/gobwas/httphead"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsflate"
	"github.com/gobwas/ws/wsutil"
)

// connection wraps one websocket to a relay. Reads and writes are not
// individually locked; the owning relay serializes writes through its
// queue and reads from a single loop.
type connection struct {
	conn           net.Conn
	compressed     bool
	controlHandler wsutil.FrameHandlerFunc
	reader         *wsutil.Reader
	writer         *wsutil.Writer
	flateReader    *wsflate.Reader
	flateWriter    *wsflate.Writer
	msgState       *wsflate.MessageState
}

// dial opens a websocket to url, negotiating permessage-deflate when the
// relay offers it.
func dial(ctx context.Context, url string) (c *connection, err error) {
	dialer := ws.Dialer{
		Extensions: []httphead.Option{
			wsflate.DefaultParameters.Option(),
		},
	}
	conn, _, hs, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	state := ws.StateClientSide
	var compressed bool
	for _, extension := range hs.Extensions {
		if string(extension.Name) == wsflate.ExtensionName {
			compressed = true
			state |= ws.StateExtended
			break
		}
	}

	var msgState wsflate.MessageState
	var flateReader *wsflate.Reader
	var flateWriter *wsflate.Writer
	if compressed {
		msgState.SetCompressed(true)
		flateReader = wsflate.NewReader(nil,
			func(r io.Reader) wsflate.Decompressor {
				return flate.NewReader(r)
			})
		flateWriter = wsflate.NewWriter(nil,
			func(w io.Writer) wsflate.Compressor {
				fw, _ := flate.NewWriter(w, 4)
				return fw
			})
	}

	controlHandler := wsutil.ControlFrameHandler(conn, ws.StateClientSide)
	reader := &wsutil.Reader{
		Source:         conn,
		State:          state,
		OnIntermediate: controlHandler,
		CheckUTF8:      false,
		Extensions:     []wsutil.RecvExtension{&msgState},
	}
	writer := wsutil.NewWriter(conn, state, ws.OpText)
	writer.SetExtensions(&msgState)

	return &connection{
		conn:           conn,
		compressed:     compressed,
		controlHandler: controlHandler,
		reader:         reader,
		writer:         writer,
		flateReader:    flateReader,
		flateWriter:    flateWriter,
		msgState:       &msgState,
	}, nil
}

func (c *connection) writeMessage(data []byte) (err error) {
	if c.compressed && c.msgState.IsCompressed() {
		c.flateWriter.Reset(c.writer)
		if _, err = c.flateWriter.Write(data); err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}
		if err = c.flateWriter.Close(); err != nil {
			return fmt.Errorf("failed to close flate writer: %w", err)
		}
	} else {
		if _, err = c.writer.Write(data); err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}
	}
	if err = c.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return
}

func (c *connection) ping() (err error) {
	return wsutil.WriteClientMessage(c.conn, ws.OpPing, nil)
}

// readMessage appends the next text or binary message to buf, handling
// interleaved control frames.
func (c *connection) readMessage(ctx context.Context, buf io.Writer) (err error) {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		var h ws.Header
		if h, err = c.reader.NextFrame(); err != nil {
			c.conn.Close()
			return fmt.Errorf("failed to advance frame: %w", err)
		}
		if h.OpCode.IsControl() {
			if err = c.controlHandler(h, c.reader); err != nil {
				return fmt.Errorf("failed to handle control frame: %w", err)
			}
			continue
		}
		if h.OpCode == ws.OpBinary || h.OpCode == ws.OpText {
			break
		}
		if err = c.reader.Discard(); err != nil {
			return fmt.Errorf("failed to discard frame: %w", err)
		}
	}
	if c.compressed && c.msgState.IsCompressed() {
		c.flateReader.Reset(c.reader)
		if _, err = io.Copy(buf, c.flateReader); err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}
	} else {
		if _, err = io.Copy(buf, c.reader); err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}
	}
	return
}

func (c *connection) close() (err error) {
	return c.conn.Close()
}
