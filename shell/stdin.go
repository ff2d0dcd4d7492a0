package shell

import (
	"context"
	"io"
	"strings"
)

// ReadInput reads r to the end, copying each chunk to echo as it arrives when
// echo is non-nil. It returns early with ctx.Err() if ctx is done first; the
// background read is then abandoned.
func ReadInput(ctx context.Context, r io.Reader, echo io.Writer) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		var sb strings.Builder
		dst := io.Writer(&sb)
		if echo != nil {
			dst = io.MultiWriter(&sb, echo)
		}
		_, err := io.Copy(dst, r)
		done <- result{text: sb.String(), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.text, res.err
	}
}
