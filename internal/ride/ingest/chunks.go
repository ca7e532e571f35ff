package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// ReassembleChunks concatenates sequentially numbered upload chunks into one
// logical delimited-text file on w. Chunks are split on line boundaries by
// the uploader, and every chunk may begin with a repeated header row: the
// first chunk's header is kept, and a later chunk's leading line is dropped
// only when it repeats that header verbatim. Working on whole lines rather
// than byte offsets means a multi-byte character can never be torn apart by
// the reassembly step itself.
func ReassembleChunks(w io.Writer, chunks ...io.Reader) error {
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks to reassemble")
	}

	first := bufio.NewReader(chunks[0])
	header, err := readLine(first)
	if err != nil && !(err == io.EOF && len(header) > 0) {
		return fmt.Errorf("read header from first chunk: %w", err)
	}
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := io.Copy(w, first); err != nil {
		return fmt.Errorf("copy chunk 0: %w", err)
	}

	headerLine := bytes.TrimRight(header, "\r\n")
	for i, c := range chunks[1:] {
		br := bufio.NewReader(c)
		line, err := readLine(br)
		if err == io.EOF && len(line) == 0 {
			continue // empty trailing chunk
		}
		if err != nil && err != io.EOF {
			return fmt.Errorf("read first line of chunk %d: %w", i+1, err)
		}
		if !bytes.Equal(bytes.TrimRight(line, "\r\n"), headerLine) {
			// Not a repeated header: this chunk starts with data, keep it.
			if _, err := w.Write(line); err != nil {
				return fmt.Errorf("write chunk %d: %w", i+1, err)
			}
		}
		if _, err := io.Copy(w, br); err != nil {
			return fmt.Errorf("copy chunk %d: %w", i+1, err)
		}
	}

	return nil
}

// readLine returns the next line including its terminator. An unterminated
// final line is returned alongside io.EOF.
func readLine(br *bufio.Reader) ([]byte, error) {
	line, err := br.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	return line, err
}
