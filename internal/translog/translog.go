// Package translog implements the per-shard write-ahead log: every engine
// write is appended here before being acknowledged (request durability) or
// on a fsync ticker (async durability), and replayed on recovery to bring a
// shard's in-memory state back from its last flushed segment.
package translog

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dreamware/vindex/internal/document"
	"github.com/dreamware/vindex/internal/vlog"
	"github.com/dreamware/vindex/internal/vmetrics"
)

var log = vlog.Component("translog")

// Op is one write recorded in the log, in commit order.
type Op struct {
	SeqNo       int64
	PrimaryTerm int64
	Doc         document.Doc
}

// CommitPoint records how far a shard's translog has been fsynced and
// merged into segments. Nothing in this module persists or reads one.
type CommitPoint struct {
	Generation     int64
	LastSeqNo      int64
	LastFsyncedSeq int64
}

// Translog manages one shard's active generation file plus any older
// generations retained until a flush supersedes them.
type Translog struct {
	mu  sync.Mutex
	dir string

	shardLabel string
	generation int64
	file       *os.File
	writer     *bufio.Writer
	lastSeqNo  int64
}

// Open opens (creating if needed) the translog directory for one shard and
// begins a fresh generation file. shardLabel is used only for metrics.
func Open(dir string, shardLabel string, generation int64) (*Translog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("translog: mkdir %s: %w", dir, err)
	}
	t := &Translog{dir: dir, shardLabel: shardLabel, generation: generation}
	if err := t.rollLocked(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Translog) genPath(gen int64) string {
	return filepath.Join(t.dir, fmt.Sprintf("translog-%d.tlog", gen))
}

func (t *Translog) rollLocked() error {
	if t.file != nil {
		if err := t.writer.Flush(); err != nil {
			return err
		}
		if err := t.file.Close(); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(t.genPath(t.generation), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("translog: open generation %d: %w", t.generation, err)
	}
	t.file = f
	t.writer = bufio.NewWriter(f)
	return nil
}

// Append writes op to the active generation file. If sync is true (request
// durability) the write is fsynced before returning; otherwise the caller
// relies on the async ticker (see Sync) to flush periodically.
func (t *Translog) Append(op Op, sync bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(op); err != nil {
		return fmt.Errorf("translog: encode op: %w", err)
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))
	if _, err := t.writer.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("translog: write length prefix: %w", err)
	}
	if _, err := t.writer.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("translog: write op: %w", err)
	}
	t.lastSeqNo = op.SeqNo

	if sync {
		if err := t.flushAndSyncLocked(); err != nil {
			return err
		}
	}

	info, err := t.file.Stat()
	if err == nil {
		vmetrics.TranslogSizeBytes.WithLabelValues(t.shardLabel).Set(float64(info.Size()))
	}
	return nil
}

func (t *Translog) flushAndSyncLocked() error {
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("translog: flush: %w", err)
	}
	if err := t.file.Sync(); err != nil {
		return fmt.Errorf("translog: fsync: %w", err)
	}
	return nil
}

// Sync flushes and fsyncs the active generation file; called by the async
// durability ticker.
func (t *Translog) Sync() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushAndSyncLocked()
}

// LastSeqNo returns the highest sequence number appended so far.
func (t *Translog) LastSeqNo() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastSeqNo
}

// Roll closes the current generation and starts a new one, called after a
// flush moves the in-memory buffer into a durable segment — everything
// before the new generation can eventually be pruned.
func (t *Translog) Roll() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation++
	return t.rollLocked()
}

// ReadGeneration replays every Op in generation gen, in order, calling fn
// for each. Used both for crash recovery and for streaming the tail to a
// recovering peer.
func ReadGeneration(dir string, gen int64, fn func(Op) error) error {
	path := filepath.Join(dir, fmt.Sprintf("translog-%d.tlog", gen))
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("translog: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		var lenPrefix [4]byte
		if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("translog: read length prefix: %w", err)
		}
		size := binary.BigEndian.Uint32(lenPrefix[:])
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			if err == io.ErrUnexpectedEOF {
				// Partial write at the tail from an unclean shutdown; stop here.
				return nil
			}
			return fmt.Errorf("translog: read op: %w", err)
		}
		var op Op
		if err := gob.NewDecoder(bytes.NewReader(buf)).Decode(&op); err != nil {
			return fmt.Errorf("translog: decode op: %w", err)
		}
		if err := fn(op); err != nil {
			return err
		}
	}
}

// Close flushes and closes the active generation file.
func (t *Translog) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.writer.Flush(); err != nil {
		return err
	}
	return t.file.Close()
}
