package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/nstehr/vimy/vimy-builder/world"
)

// TraceEntry is one line of the command trace.
type TraceEntry struct {
	Time    time.Time     `json:"time"`
	Frame   int           `json:"frame"`
	Command world.Command `json:"command"`
	Error   string        `json:"error,omitempty"`
}

// Trace writes zstd-compressed JSONL files, one per session hour.
type Trace struct {
	dir     string
	session string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewTrace(dir, session string) *Trace {
	return &Trace{dir: dir, session: session, now: time.Now}
}

func (t *Trace) Write(e TraceEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.Time.IsZero() {
		e.Time = t.now().UTC()
	}
	hour := e.Time.UTC().Format("2006-01-02-15")
	if hour != t.curHour {
		if err := t.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := t.w.Write(b); err != nil {
		return err
	}
	if err := t.w.WriteByte('\n'); err != nil {
		return err
	}
	return t.w.Flush()
}

func (t *Trace) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

// Path returns the file a given hour is written to.
func (t *Trace) Path(hour string) string {
	return filepath.Join(t.dir, fmt.Sprintf("%s-%s.jsonl.zst", t.session, hour))
}

func (t *Trace) rotateLocked(hour string) error {
	if err := t.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(t.Path(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	t.f = f
	t.enc = enc
	t.w = bufio.NewWriterSize(enc, 128*1024)
	t.curHour = hour
	return nil
}

func (t *Trace) closeLocked() error {
	var err error
	if t.w != nil {
		_ = t.w.Flush()
	}
	if t.enc != nil {
		err = t.enc.Close()
		t.enc = nil
	}
	if t.f != nil {
		_ = t.f.Close()
		t.f = nil
	}
	t.w = nil
	t.curHour = ""
	return err
}

// ReadTrace decodes every entry in one trace file.
func ReadTrace(path string) ([]TraceEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []TraceEntry
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var e TraceEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("decode trace line: %w", err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// Frames reports the current game frame to a TracingDispatcher.
type Frames interface {
	Frame() int
}

// TracingDispatcher records every command it forwards.
type TracingDispatcher struct {
	next   world.Dispatcher
	frames Frames
	trace  *Trace
}

func NewTracingDispatcher(next world.Dispatcher, frames Frames, trace *Trace) *TracingDispatcher {
	return &TracingDispatcher{next: next, frames: frames, trace: trace}
}

func (d *TracingDispatcher) Dispatch(cmd world.Command) error {
	err := d.next.Dispatch(cmd)
	e := TraceEntry{Frame: d.frames.Frame(), Command: cmd}
	if err != nil {
		e.Error = err.Error()
	}
	if werr := d.trace.Write(e); werr != nil {
		return fmt.Errorf("trace %s: %w", cmd, werr)
	}
	return err
}
