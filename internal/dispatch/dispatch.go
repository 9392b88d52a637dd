// Package dispatch maps command envelopes onto the TTL store, echoing the
// client's correlation token on every reply — success or error.
package dispatch

import (
	"fmt"

	"github.com/xpecel/kedung/internal/store"
	"github.com/xpecel/kedung/internal/wireerr"
)

// InjectedDataKey is the reserved payload key carrying the client's
// correlation token.
const InjectedDataKey = "injected_data"

type handlerFunc func(d *Dispatcher, data map[string]any) map[string]any

// Dispatcher routes decoded command envelopes to the TTL store and
// produces reply envelopes.
type Dispatcher struct {
	store    *store.Store
	handlers map[string]handlerFunc
}

// New returns a Dispatcher backed by s.
func New(s *store.Store) *Dispatcher {
	d := &Dispatcher{store: s}
	d.handlers = map[string]handlerFunc{
		"GET":     (*Dispatcher).handleGet,
		"SET":     (*Dispatcher).handleSet,
		"DEL":     (*Dispatcher).handleDel,
		"EXIST":   (*Dispatcher).handleExist,
		"BGET":    (*Dispatcher).handleBGet,
		"BSET":    (*Dispatcher).handleBSet,
		"BDEL":    (*Dispatcher).handleBDel,
		"BEXISTS": (*Dispatcher).handleBExists,
		"FLUSH":   (*Dispatcher).handleFlush,
	}
	return d
}

// Handle processes one decoded {"command": ..., "data": ...} envelope and
// returns the reply envelope, with injected_data echoed verbatim in every
// case — this is the sole multiplexing primitive the client relies on. A
// missing or unrecognized command verb is raised as a *wireerr.CommandError
// rather than built inline, mirroring the original's raise/catch around
// buffer_updated; the caller (internal/server) catches it and serializes
// the reply.
func (d *Dispatcher) Handle(envelope map[string]any) (map[string]any, error) {
	data, _ := envelope["data"].(map[string]any)
	if data == nil {
		data = map[string]any{}
	}

	token, _ := data[InjectedDataKey].(string)
	payload := make(map[string]any, len(data))
	for k, v := range data {
		if k == InjectedDataKey {
			continue
		}
		payload[k] = v
	}

	command, ok := envelope["command"].(string)
	if !ok {
		return nil, &wireerr.CommandError{
			Messages:     []string{"Tidak dapat menemukan key `command`!"},
			InjectedData: token,
		}
	}

	handler, ok := d.handlers[command]
	if !ok {
		return nil, &wireerr.CommandError{
			Messages:     []string{fmt.Sprintf("Perintah `%s` tidak dikenali!", command)},
			InjectedData: token,
		}
	}

	result := handler(d, payload)
	result[InjectedDataKey] = token
	return result, nil
}

func singleKey(data map[string]any) (string, bool) {
	for k := range data {
		return k, true
	}
	return "", false
}

func (d *Dispatcher) handleGet(data map[string]any) map[string]any {
	key, ok := singleKey(data)
	if !ok {
		return map[string]any{}
	}
	value, _ := d.store.Get(key)
	return map[string]any{key: value}
}

func (d *Dispatcher) handleSet(data map[string]any) map[string]any {
	key, ok := singleKey(data)
	if !ok {
		return map[string]any{}
	}
	return map[string]any{key: d.store.Set(key, data[key])}
}

func (d *Dispatcher) handleDel(data map[string]any) map[string]any {
	key, ok := singleKey(data)
	if !ok {
		return map[string]any{}
	}
	return map[string]any{key: d.store.Del(key)}
}

func (d *Dispatcher) handleExist(data map[string]any) map[string]any {
	key, ok := singleKey(data)
	if !ok {
		return map[string]any{}
	}
	return map[string]any{key: d.store.Exists(key)}
}

func (d *Dispatcher) handleBGet(data map[string]any) map[string]any {
	result := make(map[string]any, len(data))
	for key := range data {
		value, _ := d.store.Get(key)
		result[key] = value
	}
	return result
}

func (d *Dispatcher) handleBSet(data map[string]any) map[string]any {
	result := make(map[string]any, len(data))
	for key, value := range data {
		result[key] = d.store.Set(key, value)
	}
	return result
}

func (d *Dispatcher) handleBDel(data map[string]any) map[string]any {
	result := make(map[string]any, len(data))
	for key := range data {
		result[key] = d.store.Del(key)
	}
	return result
}

func (d *Dispatcher) handleBExists(data map[string]any) map[string]any {
	result := make(map[string]any, len(data))
	for key := range data {
		result[key] = d.store.Exists(key)
	}
	return result
}

func (d *Dispatcher) handleFlush(_ map[string]any) map[string]any {
	return map[string]any{"flush": d.store.Flush()}
}
