package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
)

var (
	ErrQueueFull  = errors.New("audit queue full")
	ErrClosed     = errors.New("audit writer closed")
	ErrNotStarted = errors.New("audit writer not started")
)

// WriterConfig controls the file sink.
type WriterConfig struct {
	// Dir is the directory for daily audit files.
	Dir string
	// FilePrefix defaults to "emergency_actions".
	FilePrefix string
	// QueueSize bounds the pending append queue.
	QueueSize int
	// FlushInterval drives periodic buffer flushes.
	FlushInterval time.Duration
}

func (c WriterConfig) withDefaults() WriterConfig {
	if c.Dir == "" {
		c.Dir = "logs"
	}
	if c.FilePrefix == "" {
		c.FilePrefix = "emergency_actions"
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 200 * time.Millisecond
	}
	return c
}

// Writer appends one JSON record per line to a daily-named file, fed
// from a bounded queue so callers never block on disk.
type Writer struct {
	cfg WriterConfig
	ch  chan Action
	wg  sync.WaitGroup
	err atomic.Value

	started uint32
	closed  uint32
}

// NewWriter creates the file sink and ensures the directory exists.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{
		cfg: cfg,
		ch:  make(chan Action, cfg.QueueSize),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start() error {
	if !atomic.CompareAndSwapUint32(&w.started, 0, 1) {
		return nil
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run()
	}()
	return nil
}

// Append enqueues an action without blocking.
func (w *Writer) Append(action Action) error {
	if atomic.LoadUint32(&w.closed) != 0 {
		return ErrClosed
	}
	if atomic.LoadUint32(&w.started) == 0 {
		return ErrNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}
	select {
	case w.ch <- action:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the writer and flushes buffered records.
func (w *Writer) Close() error {
	if atomic.CompareAndSwapUint32(&w.closed, 0, 1) {
		close(w.ch)
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error observed by the writer, if any.
func (w *Writer) Err() error {
	if v := w.err.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Path returns the file the writer targets for the given day.
func (w *Writer) Path(day time.Time) string {
	name := fmt.Sprintf("%s_%s.log", w.cfg.FilePrefix, day.Format("20060102"))
	return filepath.Join(w.cfg.Dir, name)
}

func (w *Writer) run() {
	var (
		file *os.File
		buf  *bufio.Writer
		day  string
	)
	flush := time.NewTicker(w.cfg.FlushInterval)
	defer flush.Stop()
	defer func() {
		if file == nil {
			return
		}
		if err := buf.Flush(); err != nil {
			w.setErr(err)
		}
		if err := file.Close(); err != nil {
			w.setErr(err)
		}
	}()

	for {
		select {
		case action, ok := <-w.ch:
			if !ok {
				return
			}
			now := action.Timestamp
			if now.IsZero() {
				now = time.Now().UTC()
			}
			// Rotate on day change so files stay bounded and
			// greppable by date.
			if d := now.Format("20060102"); d != day {
				if file != nil {
					if err := buf.Flush(); err != nil {
						w.setErr(err)
						return
					}
					if err := file.Close(); err != nil {
						w.setErr(err)
						return
					}
				}
				opened, err := os.OpenFile(w.Path(now), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					w.setErr(err)
					return
				}
				file = opened
				buf = bufio.NewWriter(file)
				day = d
			}
			line, err := json.Marshal(action)
			if err != nil {
				w.setErr(err)
				return
			}
			if _, err := buf.Write(append(line, '\n')); err != nil {
				w.setErr(err)
				return
			}
		case <-flush.C:
			if buf != nil {
				if err := buf.Flush(); err != nil {
					w.setErr(err)
					return
				}
			}
		}
	}
}

func (w *Writer) setErr(err error) {
	if err == nil {
		return
	}
	if w.err.Load() != nil {
		return
	}
	w.err.Store(err)
}
