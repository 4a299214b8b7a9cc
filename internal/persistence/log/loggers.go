// Package log persists world events as zstd-compressed JSONL, one file per
// UTC hour: <worldDir>/<kind>/<kind>-YYYY-MM-DD-HH.jsonl.zst.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"cityforge.ai/internal/sim/world"
)

const hourLayout = "2006-01-02-15"

// segment is the open file for one hour. Reopening an hour appends a new
// zstd frame, which readers decode as one continuous stream.
type segment struct {
	hour string
	file *os.File
	zw   *zstd.Encoder
	buf  *bufio.Writer
}

func openSegment(path, hour string) (*segment, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{hour: hour, file: f, zw: zw, buf: bufio.NewWriterSize(zw, 64*1024)}, nil
}

// put writes one line and flushes it to the encoder.
func (s *segment) put(line []byte) error {
	if _, err := s.buf.Write(line); err != nil {
		return err
	}
	return s.buf.Flush()
}

func (s *segment) close() error {
	err := s.buf.Flush()
	if cerr := s.zw.Close(); err == nil {
		err = cerr
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// eventLog appends records of one kind. Safe for concurrent use.
type eventLog struct {
	dir  string
	kind string
	now  func() time.Time

	mu  sync.Mutex
	seg *segment
}

func newEventLog(worldDir, kind string) *eventLog {
	return &eventLog{dir: filepath.Join(worldDir, kind), kind: kind, now: time.Now}
}

func (l *eventLog) path(hour string) string {
	return filepath.Join(l.dir, l.kind+"-"+hour+".jsonl.zst")
}

func (l *eventLog) append(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s log: %w", l.kind, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	hour := l.now().UTC().Format(hourLayout)
	if l.seg == nil || l.seg.hour != hour {
		if err := l.closeSegment(); err != nil {
			return fmt.Errorf("%s log: %w", l.kind, err)
		}
		seg, err := openSegment(l.path(hour), hour)
		if err != nil {
			return fmt.Errorf("%s log: %w", l.kind, err)
		}
		l.seg = seg
	}
	return l.seg.put(line)
}

func (l *eventLog) closeSegment() error {
	if l.seg == nil {
		return nil
	}
	err := l.seg.close()
	l.seg = nil
	return err
}

func (l *eventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeSegment()
}

// PlacementLogger records every committed placement. cmd/replay reads these
// files back to verify a snapshot.
type PlacementLogger struct{ *eventLog }

func NewPlacementLogger(worldDir string) *PlacementLogger {
	return &PlacementLogger{newEventLog(worldDir, "placements")}
}

func (l *PlacementLogger) WritePlacement(e world.PlacementLogEntry) error { return l.append(e) }

// NoticeLogger records the messages shown on the notice board.
type NoticeLogger struct{ *eventLog }

func NewNoticeLogger(worldDir string) *NoticeLogger {
	return &NoticeLogger{newEventLog(worldDir, "notices")}
}

func (l *NoticeLogger) WriteNotice(e world.NoticeLogEntry) error { return l.append(e) }
