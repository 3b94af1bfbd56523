package tail

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func numbered(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("L%d", i+1)
	}
	return lines
}

func TestTail_LastThreeOfTen(t *testing.T) {
	path := writeFile(t, strings.Join(numbered(10), "\n")+"\n")

	res := Reader{}.Tail(path, 3)
	require.NoError(t, res.Fault)
	assert.Equal(t, []string{"L8", "L9", "L10"}, res.Lines)
}

func TestTail_RequestMoreThanAvailable(t *testing.T) {
	want := numbered(7)
	path := writeFile(t, strings.Join(want, "\n")+"\n")

	for _, k := range []int{7, 8, 500} {
		res := Reader{}.Tail(path, k)
		require.NoError(t, res.Fault)
		assert.Equal(t, want, res.Lines, "k=%d", k)
	}
}

func TestTail_BoundedAcrossBlockSizes(t *testing.T) {
	lines := make([]string, 200)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %03d %s", i, strings.Repeat("x", i%37))
	}
	path := writeFile(t, strings.Join(lines, "\n")+"\n")

	for _, block := range []int{1, 3, 16, 100, 4096, DefaultBlockSize} {
		for _, k := range []int{1, 2, 17, 199, 200, 250} {
			res := Reader{BlockSize: block}.Tail(path, k)
			require.NoError(t, res.Fault)
			want := lines
			if k < len(lines) {
				want = lines[len(lines)-k:]
			}
			assert.Equal(t, want, res.Lines, "block=%d k=%d", block, k)
		}
	}
}

func TestTail_NoTrailingNewline(t *testing.T) {
	path := writeFile(t, "first\nsecond\nthird")

	res := Reader{BlockSize: 4}.Tail(path, 2)
	require.NoError(t, res.Fault)
	assert.Equal(t, []string{"second", "third"}, res.Lines)

	res = Reader{}.Tail(path, 10)
	assert.Equal(t, []string{"first", "second", "third"}, res.Lines)
}

func TestTail_SingleLineWithoutNewline(t *testing.T) {
	path := writeFile(t, "only")
	res := Reader{}.Tail(path, 5)
	require.NoError(t, res.Fault)
	assert.Equal(t, []string{"only"}, res.Lines)
}

func TestTail_EmptyFile(t *testing.T) {
	path := writeFile(t, "")
	res := Reader{}.Tail(path, 5)
	require.NoError(t, res.Fault)
	assert.Empty(t, res.Lines)
}

func TestTail_InteriorBlankLinesAreKept(t *testing.T) {
	path := writeFile(t, "a\n\nb\n")
	res := Reader{}.Tail(path, 10)
	require.NoError(t, res.Fault)
	assert.Equal(t, []string{"a", "", "b"}, res.Lines)
}

func TestTail_CRLFAndBOM(t *testing.T) {
	path := writeFile(t, "\xEF\xBB\xBFLog file open\r\nLogInit: Display: ready\r\n")
	res := Reader{BlockSize: 5}.Tail(path, 10)
	require.NoError(t, res.Fault)
	assert.Equal(t, []string{"Log file open", "LogInit: Display: ready"}, res.Lines)
}

func TestTail_InvalidUTF8IsReplaced(t *testing.T) {
	path := writeFile(t, "ok\nbad \xff\xfe bytes\n")
	res := Reader{}.Tail(path, 1)
	require.NoError(t, res.Fault)
	require.Len(t, res.Lines, 1)
	assert.True(t, utf8.ValidString(res.Lines[0]))
	assert.Contains(t, res.Lines[0], "bad ")
	assert.Contains(t, res.Lines[0], "�")
}

func TestTail_LongLineSpanningBlocks(t *testing.T) {
	long := strings.Repeat("z", 50_000)
	path := writeFile(t, "head\n"+long+"\ntail\n")

	res := Reader{}.Tail(path, 2)
	require.NoError(t, res.Fault)
	assert.Equal(t, []string{long, "tail"}, res.Lines)
}

func TestTail_LongLineCopiedOnce(t *testing.T) {
	const size = 256 * 1024
	long := strings.Repeat("q", size)
	path := writeFile(t, long+"\nend\n")
	r := Reader{BlockSize: 64}

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	res := r.Tail(path, 2)
	runtime.ReadMemStats(&after)

	require.NoError(t, res.Fault)
	require.Equal(t, []string{long, "end"}, res.Lines)
	// Reading, joining and decoding touch each byte a bounded number of
	// times; re-copying the partial line per block would be hundreds of MiB.
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(16*size))
}

func TestTail_NonPositiveCount(t *testing.T) {
	path := writeFile(t, "a\nb\n")
	res := Reader{}.Tail(path, 0)
	assert.NoError(t, res.Fault)
	assert.Empty(t, res.Lines)
}

func TestTail_MissingFileDegradesToDiagnostic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.log")

	res := Reader{}.Tail(path, 10)
	require.Error(t, res.Fault)
	assert.Equal(t, []string{"ERROR: Log file not found at " + path}, res.Output())
}

func TestTail_DirectoryDegradesToDiagnostic(t *testing.T) {
	dir := t.TempDir()

	res := Reader{}.Tail(dir, 10)
	require.Error(t, res.Fault)
	out := res.Output()
	require.Len(t, out, 1)
	assert.True(t, strings.HasPrefix(out[0], "ERROR: Could not read log file:"), out[0])
}

func TestResult_OutputPassesLinesThrough(t *testing.T) {
	r := Result{Lines: []string{"x", "y"}}
	assert.Equal(t, []string{"x", "y"}, r.Output())
}
