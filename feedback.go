package agenty

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// RequestRating prompts for a numeric rating on w and blocks reading lines
// from r until the input is an integer within [minRating, maxRating],
// re-prompting on every invalid line. It fails only when r is exhausted.
// Must not be called from a context that cannot block on input.
func RequestRating(r io.Reader, w io.Writer, message string, minRating, maxRating int) (int, error) {
	if !strings.HasSuffix(strings.TrimSpace(message), ":") {
		message += ":"
	}
	scanner := bufio.NewScanner(r)
	fmt.Fprintln(w, message)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		n, err := strconv.Atoi(line)
		if err != nil {
			fmt.Fprintln(w, "Invalid input. Please enter a number.")
			fmt.Fprintln(w, message)
			continue
		}
		if n < minRating || n > maxRating {
			fmt.Fprintf(w, "Invalid input. Please enter a number between %d and %d.\n", minRating, maxRating)
			fmt.Fprintln(w, message)
			continue
		}
		return n, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, io.EOF
}
