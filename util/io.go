package util

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// maxLineSize bounds a single input line; the device link has no framing,
// so anything longer would be split by the receiver anyway.
const maxLineSize = 64 * 1024

// PumpLines reads r line by line and delivers each line, without its
// trailing newline, on the returned channel.  The channel is closed when
// r reaches EOF, fails, or ctx is cancelled.  Blank lines are skipped.
//
// A reader blocked in Read (typically os.Stdin) cannot be interrupted;
// the pump goroutine exits on its next line after cancellation.
func PumpLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 4096), maxLineSize)
		for sc.Scan() {
			line := strings.TrimRight(sc.Text(), "\r")
			if line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
