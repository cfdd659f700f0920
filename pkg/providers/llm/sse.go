package llm

import (
	"bufio"
	"io"
	"strings"
)

// scanSSEEvents reads a Server-Sent-Events body line by line, invoking
// onEvent once per "data: ..." payload (skipping keep-alive blanks and the
// "[DONE]" sentinel every provider in this package uses to end a stream).
func scanSSEEvents(r io.Reader, onEvent func(data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		if err := onEvent(data); err != nil {
			return err
		}
	}
	return scanner.Err()
}
