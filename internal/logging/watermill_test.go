package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
)

func TestWatermillAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := NewTestLogger(&buf)
	a := NewWatermillAdapter(&l).With(watermill.LogFields{"subject": "encore.runs"})

	a.Error("publish failed", errors.New("no responders"), watermill.LogFields{"attempt": 2})

	out := buf.String()
	for _, want := range []string{
		`"level":"error"`,
		`"message":"publish failed"`,
		`"error":"no responders"`,
		`"subject":"encore.runs"`,
		`"attempt":2`,
		`"component":"watermill"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in output, got %s", want, out)
		}
	}
}
