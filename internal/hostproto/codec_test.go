package hostproto

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"
)

func TestWriterEmitsOneJSONObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.UpdateStatus("waiting"); err != nil {
		t.Fatal(err)
	}
	if err := w.ConnectionStatus("online", ""); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d: %q", len(lines), buf.String())
	}
	var env Envelope
	if err := json.Unmarshal([]byte(lines[0]), &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != TypeUpdateStatus {
		t.Fatalf("want %s, got %s", TypeUpdateStatus, env.Type)
	}
}

func TestReaderDecodesSequentialMessages(t *testing.T) {
	input := `{"type":"INIT","request_id":"r1","payload":{"config":{"provider_key":"localdir"}}}
{"type":"GET_CACHE_STATS","request_id":"r2"}
`
	r := NewReader(strings.NewReader(input))

	first, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if first.Type != TypeInit || first.RequestID != "r1" {
		t.Fatalf("unexpected first message: %+v", first)
	}

	second, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if second.Type != TypeGetCacheStats {
		t.Fatalf("unexpected second message: %+v", second)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("want io.EOF, got %v", err)
	}
}
