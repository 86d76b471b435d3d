package engine

import (
	"encoding/binary"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestSetGetRoundTrip exercises P1: a Set followed by a Get on the
// same key returns the value that was set.
func TestSetGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("key1", "value1"))

	value, ok, err := s.Get("key1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value1", value)
}

// TestSetOverwrite verifies that a second Set on the same key
// overrides the first.
func TestSetOverwrite(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("key1", "value1"))
	require.NoError(t, s.Set("key1", "value2"))

	value, ok, err := s.Get("key1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value2", value)
}

// TestGetMissingKey exercises the miss path: Get on an absent key
// returns (false, nil), never an error.
func TestGetMissingKey(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{})
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)
}

// TestRemove exercises P2: removing a key makes subsequent Gets miss,
// and removing an absent key fails with KeyNotFoundError.
func TestRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set("key1", "value1"))
	require.NoError(t, s.Remove("key1"))

	_, ok, err := s.Get("key1")
	require.NoError(t, err)
	require.False(t, ok)

	err = s.Remove("key1")
	require.Error(t, err)
	var notFound *KeyNotFoundError
	require.ErrorAs(t, err, &notFound)
}

// TestPersistsAcrossReopen exercises P3: data written before Close is
// visible after reopening the same directory.
func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Set("key1", "value1"))
	require.NoError(t, s.Set("key2", "value2"))
	require.NoError(t, s.Remove("key1"))
	require.NoError(t, s.Close())

	reopened, err := Open(dir, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	_, ok, err := reopened.Get("key1")
	require.NoError(t, err)
	require.False(t, ok)

	value, ok, err := reopened.Get("key2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value2", value)
}

// TestCompactionPreservesData exercises P4/P5: compacting below a
// tiny threshold still leaves every live key readable, and the
// reported uncompacted-bytes upper bound drops afterward.
func TestCompactionPreservesData(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, Options{CompactionThreshold: 1})
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 50; i++ {
		key := randomKeyName(i)
		require.NoError(t, s.Set(key, "value"))
	}
	for i := 0; i < 25; i++ {
		require.NoError(t, s.Remove(randomKeyName(i)))
	}

	for i := 25; i < 50; i++ {
		value, ok, err := s.Get(randomKeyName(i))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "value", value)
	}
	for i := 0; i < 25; i++ {
		_, ok, err := s.Get(randomKeyName(i))
		require.NoError(t, err)
		require.False(t, ok)
	}

	require.Equal(t, uint64(0), s.UncompactedBytes())
}

func randomKeyName(i int) string {
	return fmt.Sprintf("key-%03d", i)
}

// TestReopenRecoversFromCorruptTail verifies that a truncated trailing
// write on the highest-numbered segment is truncated away on reopen,
// leaving every previously committed key intact.
func TestReopenRecoversFromCorruptTail(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Set("key1", "value1"))
	require.NoError(t, s.Set("key2", "value2"))
	require.NoError(t, s.Close())

	gens, err := sortedGenerations(dir)
	require.NoError(t, err)
	require.Len(t, gens, 1)

	f, err := os.OpenFile(segmentPath(dir, gens[0]), os.O_RDWR|os.O_APPEND, 0644)
	require.NoError(t, err)

	garbage := make([]byte, lenPrefixWidth)
	binary.LittleEndian.PutUint32(garbage, 9999)
	_, err = f.Write(garbage)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := Open(dir, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	value, ok, err := reopened.Get("key1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value1", value)

	value, ok, err = reopened.Get("key2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value2", value)
}

// TestReopenFailsOnCorruptNonHighestSegment verifies that the same
// kind of corruption on an earlier generation, rather than the
// highest, is fatal: it's never safe to assume an interior segment was
// left mid-write.
func TestReopenFailsOnCorruptNonHighestSegment(t *testing.T) {
	dir := t.TempDir()

	garbage := make([]byte, lenPrefixWidth)
	binary.LittleEndian.PutUint32(garbage, 9999)
	require.NoError(t, os.WriteFile(segmentPath(dir, 1), garbage, 0644))
	require.NoError(t, os.WriteFile(segmentPath(dir, 2), nil, 0644))

	_, err := Open(dir, Options{})
	require.Error(t, err)
	var corrupt *CorruptRecordError
	require.ErrorAs(t, err, &corrupt)
}

// TestEngineMarkerStickiness exercises the engine-marker protocol: a
// fresh directory records its backend name, and reopening it while
// requesting a different name fails.
func TestEngineMarkerStickiness(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	marker, err := os.ReadFile(dir + "/" + markerFileName)
	require.NoError(t, err)
	require.Equal(t, KvsEngineName, string(marker))

	_, err = Open(dir, Options{EngineName: "sled"})
	require.Error(t, err)
	var wrongType *WrongEngineTypeError
	require.ErrorAs(t, err, &wrongType)
}

// TestUnknownEngineName verifies that requesting an unrecognized
// backend name fails without touching the directory.
func TestUnknownEngineName(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(dir, Options{EngineName: "rocksdb"})
	require.Error(t, err)
	var unknown *UnknownEngineTypeError
	require.ErrorAs(t, err, &unknown)

	_, statErr := os.Stat(dir + "/" + markerFileName)
	require.True(t, os.IsNotExist(statErr))
}
