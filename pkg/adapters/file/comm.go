package file

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/conduit/pkg/ports"
)

// Transport binds channels to files on the local filesystem.
// Reading endpoints yield one message per line followed by the EOF sentinel.
// Writing endpoints append one line per message and close the file on EOF.
type Transport struct {
	BasePath string
	Append   bool
}

// New creates a file transport resolving relative addresses against basePath.
func New(basePath string) *Transport {
	return &Transport{BasePath: basePath}
}

// Name returns the transport name.
func (t *Transport) Name() string { return "file" }

// Env returns no bindings; file relays are driven by the orchestrator only.
func (t *Transport) Env() map[string]string { return map[string]string{} }

// Path resolves address to a filesystem path.
func (t *Transport) Path(address string) string {
	if filepath.IsAbs(address) || t.BasePath == "" {
		return address
	}
	return filepath.Join(t.BasePath, address)
}

// Open creates an endpoint for the file at address.
func (t *Transport) Open(dir ports.Direction, address string) (ports.Communicator, error) {
	if address == "" {
		return nil, fmt.Errorf("file: empty path")
	}
	return &Comm{
		path:    t.Path(address),
		address: address,
		dir:     dir,
		append:  t.Append,
	}, nil
}

// Comm is a file endpoint.
type Comm struct {
	path    string
	address string
	dir     ports.Direction
	append  bool

	mu     sync.Mutex
	open   bool
	closed bool

	// recv side
	lines   [][]byte
	sentEOF bool

	// send side
	f *os.File
	w *bufio.Writer
}

func (c *Comm) Name() string               { return c.dir.String() + ":file:" + c.address }
func (c *Comm) Address() string            { return c.address }
func (c *Comm) Direction() ports.Direction { return c.dir }
func (c *Comm) MaxFrameSize() int          { return 0 }
func (c *Comm) EOF() []byte                { return ports.DefaultEOF }

// Open reads the whole input file, or creates the output file.
func (c *Comm) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return nil
	}

	if c.dir == ports.Recv {
		data, err := os.ReadFile(c.path)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		c.lines = splitLines(data)
	} else {
		if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
			return fmt.Errorf("failed to ensure output directory: %w", err)
		}
		flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		if c.append {
			flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		}
		f, err := os.OpenFile(c.path, flags, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open output file: %w", err)
		}
		c.f = f
		c.w = bufio.NewWriter(f)
	}
	c.open = true
	c.closed = false
	return nil
}

func splitLines(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	data = bytes.TrimSuffix(data, []byte("\n"))
	parts := bytes.Split(data, []byte("\n"))
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		out = append(out, bytes.TrimSuffix(p, []byte("\r")))
	}
	return out
}

func (c *Comm) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Comm) closeLocked() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.open = false
	c.lines = nil
	if c.f == nil {
		return nil
	}
	flushErr := c.w.Flush()
	closeErr := c.f.Close()
	c.f, c.w = nil, nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// OnEOF flushes and closes the output file.
func (c *Comm) OnEOF() error {
	return c.Close()
}

func (c *Comm) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Comm) Send(msg []byte) error {
	if c.dir != ports.Send {
		return ports.ErrWrongDirection
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ports.ErrClosed
	}
	if !c.open {
		return ports.ErrNotOpen
	}
	// The sentinel marks the end of the stream, it is not file content.
	if bytes.Equal(msg, ports.DefaultEOF) {
		return nil
	}
	if _, err := c.w.Write(msg); err != nil {
		return err
	}
	if len(msg) == 0 || msg[len(msg)-1] != '\n' {
		if err := c.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return c.w.Flush()
}

// Recv never blocks: the whole file is read at Open.
func (c *Comm) Recv(_ time.Duration) ([]byte, error) {
	if c.dir != ports.Recv {
		return nil, ports.ErrWrongDirection
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ports.ErrClosed
	}
	if !c.open {
		return nil, ports.ErrNotOpen
	}
	if len(c.lines) > 0 {
		line := c.lines[0]
		c.lines = c.lines[1:]
		return line, nil
	}
	if !c.sentEOF {
		c.sentEOF = true
		return ports.DefaultEOF, nil
	}
	_ = c.closeLocked()
	return nil, ports.ErrClosed
}

// Pending counts unread lines plus the sentinel still to be emitted.
func (c *Comm) Pending() int {
	if c.dir != ports.Recv {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.lines)
	if c.open && !c.sentEOF {
		n++
	}
	return n
}
