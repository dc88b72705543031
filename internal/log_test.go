package internal

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestErrorLogFilter(t *testing.T) {
	for _, tt := range []struct {
		name    string
		message string
		dropped bool
	}{
		{
			name:    "canceled request is dropped",
			message: "http: proxy error: context canceled",
			dropped: true,
		},
		{
			name:    "canceled in the middle of a line is dropped",
			message: "some prefix context canceled and suffix",
			dropped: true,
		},
		{
			name:    "other errors pass through",
			message: "http: TLS handshake error from 10.0.0.1:4242: EOF",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			lg := log.New(&ErrorLogFilter{Unwrap: log.New(&buf, "", 0)}, "", 0)
			lg.Println(tt.message)

			if tt.dropped {
				if buf.Len() != 0 {
					t.Errorf("message was written to output: %q", buf.String())
				}
				return
			}

			if !strings.Contains(buf.String(), tt.message) {
				t.Errorf("message was not written to output: %q", buf.String())
			}

			if !strings.HasSuffix(buf.String(), "\n") {
				t.Errorf("output is missing newline: %q", buf.String())
			}
		})
	}
}

func TestErrorLogFilterNilUnwrap(t *testing.T) {
	elf := &ErrorLogFilter{}
	n, err := elf.Write([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}

	if n != 5 {
		t.Errorf("wanted 5 bytes consumed, got %d", n)
	}
}
