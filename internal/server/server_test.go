package server

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/xpecel/kedung/internal/store"
	"github.com/xpecel/kedung/internal/wire"
)

func startTestServer(t *testing.T, sweepInterval time.Duration, ttl time.Duration) (*Server, context.CancelFunc, string) {
	t.Helper()

	dir := t.TempDir()
	sockPath := filepath.Join(dir, "kedung.sock")

	s := New(store.New(ttl), sockPath, wire.DefaultPrefixWidth, sweepInterval, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(sockPath); err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	return s, cancel, sockPath
}

func dialAndSend(t *testing.T, sockPath string, requests []map[string]any) []map[string]any {
	t.Helper()

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	codec := wire.NewCodec(wire.DefaultPrefixWidth)

	for _, req := range requests {
		encoded, err := json.Marshal(req)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		framed, err := codec.Encode(encoded)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if _, err := conn.Write(framed); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	replies := make([]map[string]any, 0, len(requests))
	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	for len(replies) < len(requests) {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read: %v (got %d of %d replies)", err, len(replies), len(requests))
		}
		frames, err := codec.Feed(buf[:n])
		if err != nil {
			t.Fatalf("feed: %v", err)
		}
		for _, f := range frames {
			var reply map[string]any
			if err := json.Unmarshal(f, &reply); err != nil {
				t.Fatalf("unmarshal reply: %v", err)
			}
			replies = append(replies, reply)
		}
	}

	return replies
}

func TestEndToEndSetGet(t *testing.T) {
	_, cancel, sockPath := startTestServer(t, time.Hour, time.Minute)
	defer cancel()

	replies := dialAndSend(t, sockPath, []map[string]any{
		{"command": "SET", "data": map[string]any{"key_1": "value_1", "injected_data": "SET_deadbeef"}},
		{"command": "GET", "data": map[string]any{"key_1": nil, "injected_data": "GET_deadbeef"}},
	})

	if replies[0]["key_1"] != true || replies[0]["injected_data"] != "SET_deadbeef" {
		t.Fatalf("unexpected SET reply: %v", replies[0])
	}
	if replies[1]["key_1"] != "value_1" || replies[1]["injected_data"] != "GET_deadbeef" {
		t.Fatalf("unexpected GET reply: %v", replies[1])
	}
}

func TestEndToEndBulk(t *testing.T) {
	_, cancel, sockPath := startTestServer(t, time.Hour, time.Minute)
	defer cancel()

	replies := dialAndSend(t, sockPath, []map[string]any{
		{"command": "BSET", "data": map[string]any{"k1": "a", "k2": "b", "injected_data": "t1"}},
		{"command": "BGET", "data": map[string]any{"k1": nil, "k2": nil, "injected_data": "t2"}},
		{"command": "BDEL", "data": map[string]any{"k1": nil, "k2": nil, "injected_data": "t3"}},
	})

	if replies[0]["k1"] != true || replies[0]["k2"] != true {
		t.Fatalf("unexpected BSET reply: %v", replies[0])
	}
	if replies[1]["k1"] != "a" || replies[1]["k2"] != "b" {
		t.Fatalf("unexpected BGET reply: %v", replies[1])
	}
	if replies[2]["k1"] != true || replies[2]["k2"] != true {
		t.Fatalf("unexpected BDEL reply: %v", replies[2])
	}
}

func TestEndToEndFlush(t *testing.T) {
	_, cancel, sockPath := startTestServer(t, time.Hour, time.Minute)
	defer cancel()

	replies := dialAndSend(t, sockPath, []map[string]any{
		{"command": "SET", "data": map[string]any{"k1": "a", "injected_data": "t1"}},
		{"command": "FLUSH", "data": map[string]any{"injected_data": "t2"}},
		{"command": "GET", "data": map[string]any{"k1": nil, "injected_data": "t3"}},
	})

	if replies[1]["flush"] != true {
		t.Fatalf("unexpected FLUSH reply: %v", replies[1])
	}
	if replies[2]["k1"] != nil {
		t.Fatalf("expected nil after flush, got %v", replies[2]["k1"])
	}
}

func TestEndToEndUnknownCommand(t *testing.T) {
	_, cancel, sockPath := startTestServer(t, time.Hour, time.Minute)
	defer cancel()

	replies := dialAndSend(t, sockPath, []map[string]any{
		{"command": "XSET", "data": map[string]any{"a": 1, "injected_data": "T"}},
	})

	errs, ok := replies[0]["errors"].([]any)
	if !ok || len(errs) != 1 || errs[0] != "Perintah `XSET` tidak dikenali!" {
		t.Fatalf("unexpected reply: %v", replies[0])
	}
	if replies[0]["injected_data"] != "T" {
		t.Fatalf("token must be echoed: %v", replies[0])
	}
}

func TestEndToEndFragmentedWire(t *testing.T) {
	_, cancel, sockPath := startTestServer(t, time.Hour, time.Minute)
	defer cancel()

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	payload := `{"command":"SET","data":{"key_1":"value_1","injected_data":"SET_abcdef01"}}`
	framed, _ := wire.NewCodec(wire.DefaultPrefixWidth).Encode([]byte(payload))

	mid := len(framed) / 2
	if _, err := conn.Write(framed[:mid]); err != nil {
		t.Fatalf("write first half: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := conn.Write(framed[mid:]); err != nil {
		t.Fatalf("write second half: %v", err)
	}

	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	codec := wire.NewCodec(wire.DefaultPrefixWidth)
	frames, err := codec.Feed(buf[:n])
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected exactly one dispatched reply, got %d", len(frames))
	}

	var reply map[string]any
	json.Unmarshal(frames[0], &reply)
	if reply["key_1"] != true {
		t.Fatalf("unexpected reply: %v", reply)
	}
}

func TestExpirySweeper(t *testing.T) {
	_, cancel, sockPath := startTestServer(t, 20*time.Millisecond, 10*time.Millisecond)
	defer cancel()

	dialAndSend(t, sockPath, []map[string]any{
		{"command": "SET", "data": map[string]any{"key_1": "value_1", "injected_data": "t1"}},
	})

	time.Sleep(100 * time.Millisecond)

	replies := dialAndSend(t, sockPath, []map[string]any{
		{"command": "EXIST", "data": map[string]any{"key_1": nil, "injected_data": "t2"}},
	})

	if replies[0]["key_1"] != false {
		t.Fatalf("expected key to be swept away, got %v", replies[0])
	}
}
