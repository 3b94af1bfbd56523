// Package tail reads the last lines of a text file by scanning backwards from
// EOF in fixed-size blocks, so the cost depends on how much of the file is
// returned rather than how large the file is.
package tail

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/text/encoding/unicode"
)

// DefaultBlockSize is the backward read granularity.
const DefaultBlockSize = 8 * 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Result is the outcome of a tail read: lines oldest-first, or a fault.
type Result struct {
	Path  string
	Lines []string
	Fault error
}

// Output returns the lines on success, or a single diagnostic line describing
// the fault. Callers that only display text never need to branch on Fault.
func (r Result) Output() []string {
	if r.Fault == nil {
		return r.Lines
	}
	if errors.Is(r.Fault, fs.ErrNotExist) {
		return []string{fmt.Sprintf("ERROR: Log file not found at %s", r.Path)}
	}
	return []string{fmt.Sprintf("ERROR: Could not read log file: %v", r.Fault)}
}

// Reader tails files. The zero value is ready to use. A Reader holds no
// mutable state and is safe for concurrent use.
type Reader struct {
	BlockSize int
}

// Tail returns at most n of the last lines of the file at path, oldest-first.
//
// Line terminators ("\n", with an optional preceding "\r") are stripped. The
// empty segment after a final trailing newline is not a line; interior blank
// lines are. Invalid UTF-8 is replaced with U+FFFD rather than failing.
func (r Reader) Tail(path string, n int) Result {
	res := Result{Path: path}
	if n <= 0 {
		return res
	}

	f, err := os.Open(path)
	if err != nil {
		res.Fault = err
		return res
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		res.Fault = err
		return res
	}
	if info.IsDir() {
		res.Fault = fmt.Errorf("%s is a directory", path)
		return res
	}

	raw, err := r.scan(f, info.Size(), n)
	if err != nil {
		res.Fault = err
		return res
	}

	dec := unicode.UTF8.NewDecoder()
	res.Lines = make([]string, len(raw))
	// raw is newest-first; flip while decoding.
	for i, line := range raw {
		line = bytes.TrimSuffix(line, []byte{'\r'})
		text, derr := dec.Bytes(line)
		if derr != nil {
			text = bytes.ToValidUTF8(line, []byte("\uFFFD"))
		}
		res.Lines[len(raw)-1-i] = string(text)
	}
	return res
}

// scan walks backwards from size collecting up to n raw lines, newest-first.
// Each block is searched once; a line spanning blocks is kept as its pieces
// and joined when its start is found.
func (r Reader) scan(f *os.File, size int64, n int) ([][]byte, error) {
	block := int64(r.BlockSize)
	if block <= 0 {
		block = DefaultBlockSize
	}

	lines := make([][]byte, 0, min(n, 1024))
	var pieces [][]byte // partial line, rightmost piece first
	sawTerminator := false
	pos := size

	for len(lines) < n && pos > 0 {
		start := max(0, pos-block)
		chunk := make([]byte, pos-start)
		if _, err := f.ReadAt(chunk, start); err != nil {
			return nil, err
		}
		pos = start

		end := len(chunk)
		for len(lines) < n {
			nl := bytes.LastIndexByte(chunk[:end], '\n')
			if nl < 0 {
				pieces = append(pieces, chunk[:end])
				break
			}
			seg := joinPieces(chunk[nl+1:end], pieces)
			pieces = pieces[:0]
			end = nl
			if !sawTerminator {
				// Text after the last newline in the file.
				sawTerminator = true
				if len(seg) == 0 {
					continue
				}
			}
			lines = append(lines, seg)
		}
	}

	// At the file start the pending pieces form a complete first line.
	if pos == 0 && len(lines) < n {
		first := bytes.TrimPrefix(joinPieces(nil, pieces), utf8BOM)
		if sawTerminator || len(first) > 0 {
			lines = append(lines, first)
		}
	}
	return lines, nil
}

// joinPieces returns head followed by pieces in reverse order.
func joinPieces(head []byte, pieces [][]byte) []byte {
	if len(pieces) == 0 {
		return head
	}
	total := len(head)
	for _, p := range pieces {
		total += len(p)
	}
	out := make([]byte, 0, total)
	out = append(out, head...)
	for i := len(pieces) - 1; i >= 0; i-- {
		out = append(out, pieces[i]...)
	}
	return out
}
