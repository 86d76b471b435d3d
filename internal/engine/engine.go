// Package engine implements a log-structured, crash-safe key/value
// storage engine: a directory of numbered, append-only log segments
// with a single active writer, an in-memory index over all live
// records, and compaction triggered synchronously from Set/Remove.
package engine

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
)

// DefaultCompactionThreshold is the uncompacted-bytes watermark that
// triggers compaction.
const DefaultCompactionThreshold = 1024 * 1024

// Options configures a Store at Open time.
type Options struct {
	// EngineName is the backend this caller wants to use. Empty means
	// "whatever this directory already uses, defaulting to kvs for a
	// fresh directory".
	EngineName string

	// CompactionThreshold overrides DefaultCompactionThreshold. Zero
	// means "use the default".
	CompactionThreshold uint64
}

// Store is one opened database directory: a set of log segments, the
// in-memory index over them, and the bookkeeping needed to trigger and
// run compaction. Store is safe for concurrent use; all operations
// serialize on a single mutex, which keeps them linearizable even if
// callers happen to share a Store across goroutines.
type Store struct {
	mu sync.Mutex

	dir       string
	segments  map[uint64]*segment
	index     index
	activeGen uint64

	uncompacted uint64
	threshold   uint64

	logger *zap.Logger
}

// Open opens (creating if necessary) a Store rooted at dir. It scans
// dir for existing log segments, replays each in ascending generation
// order to rebuild the index, opens a fresh active segment, and
// verifies/writes the engine marker.
func Open(dir string, opts Options) (*Store, error) {
	logger := zap.L().Named("engine")

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	resolved, err := resolveEngineMarker(dir, opts.EngineName)
	if err != nil {
		return nil, err
	}
	if resolved != KvsEngineName {
		return nil, fmt.Errorf("open store: backend %q is not implemented by this engine", resolved)
	}

	threshold := opts.CompactionThreshold
	if threshold == 0 {
		threshold = DefaultCompactionThreshold
	}

	s := &Store{
		dir:       dir,
		segments:  make(map[uint64]*segment),
		index:     newIndex(),
		threshold: threshold,
		logger:    logger,
	}

	gens, err := sortedGenerations(dir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	for i, gen := range gens {
		seg, err := openSegment(dir, gen)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s.segments[gen] = seg

		isHighest := i == len(gens)-1
		delta, err := replaySegment(seg, s.index, isHighest)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s.uncompacted += delta
	}

	s.activeGen = 1
	if len(gens) > 0 {
		s.activeGen = gens[len(gens)-1] + 1
	}

	active, err := openSegment(dir, s.activeGen)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s.segments[s.activeGen] = active

	logger.Info("opened store",
		zap.String("dir", dir),
		zap.Uint64("active_generation", s.activeGen),
		zap.Int("keys", len(s.index)),
		zap.Uint64("uncompacted_bytes", s.uncompacted),
	)

	return s, nil
}

// Set appends a Set record for key/value, updates the index, and
// triggers compaction if the uncompacted-bytes watermark is exceeded.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, err := s.activeSegment().append(setRecord(key, value))
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}

	if old, displaced := s.index.put(key, loc); displaced {
		s.uncompacted += old.length
	}

	if s.uncompacted > s.threshold {
		if err := s.compact(); err != nil {
			return fmt.Errorf("set %q: compaction: %w", key, err)
		}
	}
	return nil
}

// Get looks up key and returns (value, true, nil) if present,
// (_, false, nil) if absent. A non-nil error indicates corruption or
// an I/O failure, never a plain miss.
func (s *Store) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, ok := s.index[key]
	if !ok {
		return "", false, nil
	}

	seg, ok := s.segments[loc.gen]
	if !ok {
		return "", false, fmt.Errorf("get %q: missing segment for generation %d", key, loc.gen)
	}

	rec, err := seg.readAt(loc)
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}

	if rec.Kind != kindSet || rec.Key != key {
		return "", false, &UnexpectedCommandTypeError{Key: key, Got: rec.Kind}
	}

	return rec.Value, true, nil
}

// Remove deletes key. It fails with KeyNotFoundError if key is absent.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[key]; !ok {
		return &KeyNotFoundError{Key: key}
	}

	removeLoc, err := s.activeSegment().append(removeRecord(key))
	if err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}

	if old, displaced := s.index.delete(key); displaced {
		s.uncompacted += old.length
	}
	s.uncompacted += removeLoc.length

	if s.uncompacted > s.threshold {
		if err := s.compact(); err != nil {
			return fmt.Errorf("remove %q: compaction: %w", key, err)
		}
	}
	return nil
}

// Close flushes and closes every open segment.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seg := range s.segments {
		if err := seg.close(); err != nil {
			return err
		}
	}
	return nil
}

// UncompactedBytes reports the current upper bound on reclaimable
// bytes, mostly useful for tests exercising compaction.
func (s *Store) UncompactedBytes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uncompacted
}

func (s *Store) activeSegment() *segment {
	return s.segments[s.activeGen]
}

// compact copies every live record into a fresh generation Gc, opens a
// fresh active writer Gw = Gc+1, and only then unlinks every older
// segment. Because Gc and Gw are new generation numbers and the old
// segments are only removed after Gc is fully written and flushed, a
// crash mid-compaction leaves the pre-compaction state intact for
// replay to reconstruct. Gw is created only after Gc is flushed, so a
// torn Gc is still the highest segment on disk and replay truncates its
// tail instead of failing.
func (s *Store) compact() error {
	gc := s.activeGen + 1
	gw := s.activeGen + 2

	out, err := openSegment(s.dir, gc)
	if err != nil {
		return err
	}

	fresh := newIndex()
	for key, loc := range s.index {
		src, ok := s.segments[loc.gen]
		if !ok {
			return fmt.Errorf("compact: missing segment for generation %d", loc.gen)
		}

		buf := make([]byte, loc.length)
		if _, err := src.store.ReadAt(buf, int64(loc.offset)); err != nil {
			return fmt.Errorf("compact: read %q: %w", key, err)
		}

		_, newPos, err := out.store.Append(buf)
		if err != nil {
			return fmt.Errorf("compact: write %q: %w", key, err)
		}

		fresh[key] = location{gen: gc, offset: newPos, length: loc.length}
	}

	if err := out.store.Flush(); err != nil {
		return fmt.Errorf("compact: flush: %w", err)
	}

	writer, err := openSegment(s.dir, gw)
	if err != nil {
		out.close()
		return err
	}

	for gen, seg := range s.segments {
		if gen == gc || gen == gw {
			continue
		}
		if err := seg.remove(); err != nil {
			return fmt.Errorf("compact: remove generation %d: %w", gen, err)
		}
	}

	s.logger.Info("compacted store",
		zap.Uint64("output_generation", gc),
		zap.Uint64("writer_generation", gw),
		zap.Int("live_keys", len(fresh)),
	)

	s.segments = map[uint64]*segment{gc: out, gw: writer}
	s.index = fresh
	s.activeGen = gw
	s.uncompacted = 0

	return nil
}

// replaySegment scans seg from the start, rebuilding idx and returning
// the number of uncompacted bytes encountered. A short length prefix
// at EOF is always a clean end. A short payload read or a decode
// failure is fatal unless isHighest is true, in which case it's
// treated as a truncated final write: the segment is truncated to the
// last good record boundary and replay succeeds.
func replaySegment(seg *segment, idx index, isHighest bool) (uncompacted uint64, err error) {
	pos := uint64(0)

	for {
		prefix := make([]byte, lenPrefixWidth)
		if _, err := seg.store.ReadAt(prefix, int64(pos)); err != nil {
			// A short (or absent) length prefix at EOF is a clean end,
			// never a corrupt tail, regardless of generation.
			if err == io.EOF {
				return uncompacted, nil
			}
			return uncompacted, fmt.Errorf("replay generation %d: %w", seg.gen, err)
		}

		payloadLen := uint64(le32(prefix))
		available := seg.store.Size()
		if pos+lenPrefixWidth+payloadLen > available {
			return handleReplayError(seg, pos, isHighest, uncompacted, io.ErrUnexpectedEOF)
		}

		payload := make([]byte, payloadLen)
		if _, err := seg.store.ReadAt(payload, int64(pos)+lenPrefixWidth); err != nil {
			return handleReplayError(seg, pos, isHighest, uncompacted, err)
		}

		rec, err := decodeRecord(payload)
		if err != nil {
			return handleReplayError(seg, pos, isHighest, uncompacted, err)
		}

		newPos := pos + lenPrefixWidth + uint64(payloadLen)

		switch rec.Kind {
		case kindSet:
			if old, displaced := idx.put(rec.Key, location{gen: seg.gen, offset: pos, length: newPos - pos}); displaced {
				uncompacted += old.length
			}
		case kindRemove:
			if old, displaced := idx.delete(rec.Key); displaced {
				uncompacted += old.length
			}
			uncompacted += newPos - pos
		}

		pos = newPos
	}
}

// handleReplayError decides whether a short-read or decode failure at
// pos is a clean truncated tail (only permitted on the highest
// generation) or a fatal CorruptRecordError.
func handleReplayError(seg *segment, pos uint64, isHighest bool, uncompacted uint64, cause error) (uint64, error) {
	if !isHighest {
		return uncompacted, &CorruptRecordError{Gen: seg.gen, Offset: pos, Err: cause}
	}

	if err := os.Truncate(seg.store.Name(), int64(pos)); err != nil {
		return uncompacted, fmt.Errorf("truncate corrupt tail of generation %d: %w", seg.gen, err)
	}
	seg.store.size = pos

	return uncompacted, nil
}
