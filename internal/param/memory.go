package param

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Value is the current state of one parameter.
type Value struct {
	Def       Def       `json:"def"`
	Value     float64   `json:"value"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Memory is an in-process Registry and Writer.
type Memory struct {
	mu     sync.RWMutex
	values map[string]*Value
}

func NewMemory(defs ...Def) *Memory {
	m := &Memory{values: make(map[string]*Value, len(defs))}
	for _, d := range defs {
		m.Define(d)
	}
	return m
}

// Define adds or replaces a parameter and resets it to its default.
func (m *Memory) Define(d Def) {
	m.mu.Lock()
	m.values[d.Name] = &Value{Def: d, Value: d.Default, Source: "default", UpdatedAt: time.Now()}
	m.mu.Unlock()
}

func (m *Memory) Lookup(name string) (Def, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[name]
	if !ok {
		return Def{}, false
	}
	return v.Def, true
}

func (m *Memory) Set(name string, value float64, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	if !ok {
		return fmt.Errorf("unknown parameter %q", name)
	}
	v.Value = value
	v.Source = source
	v.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) Get(name string) (Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[name]
	if !ok {
		return Value{}, false
	}
	return *v, true
}

// Snapshot returns all parameters ordered by name.
func (m *Memory) Snapshot() []Value {
	m.mu.RLock()
	out := make([]Value, 0, len(m.values))
	for _, v := range m.values {
		out = append(out, *v)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Def.Name < out[j].Def.Name })
	return out
}
