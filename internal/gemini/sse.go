package gemini

import (
	"bufio"
	"bytes"
	"io"
)

// sseDecoder reads an SSE byte stream and yields the data payload of each
// event. Events are delimited by blank lines; partial events are buffered
// across reads; [DONE] sentinels and non-data lines are skipped.
type sseDecoder struct {
	scanner *bufio.Scanner
}

func newSSEDecoder(r io.Reader) *sseDecoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	s.Split(splitEvents)
	return &sseDecoder{scanner: s}
}

// Next returns the next data payload, or io.EOF when the stream ends.
func (d *sseDecoder) Next() ([]byte, error) {
	for d.scanner.Scan() {
		payload := extractData(d.scanner.Bytes())
		if len(payload) == 0 {
			continue
		}
		if bytes.Equal(payload, []byte("[DONE]")) {
			continue
		}
		return payload, nil
	}
	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// splitEvents is a bufio.SplitFunc that tokenizes on blank-line event
// delimiters (\r?\n\r?\n), keeping any trailing remainder buffered.
func splitEvents(data []byte, atEOF bool) (int, []byte, error) {
	for i := 0; i < len(data); i++ {
		if data[i] != '\n' {
			continue
		}
		j := i + 1
		if j < len(data) && data[j] == '\r' {
			j++
		}
		if j < len(data) && data[j] == '\n' {
			return j + 1, data[:i], nil
		}
		// A trailing "\n" or "\n\r" may still grow into a delimiter.
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// extractData concatenates the data: lines of one event.
func extractData(event []byte) []byte {
	var out []byte
	for _, line := range bytes.Split(event, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		chunk := bytes.TrimPrefix(line, []byte("data:"))
		if len(chunk) > 0 && chunk[0] == ' ' {
			chunk = chunk[1:]
		}
		if out != nil {
			out = append(out, '\n')
		}
		out = append(out, chunk...)
	}
	return out
}
