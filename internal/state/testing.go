package state

// Seed is a test helper that plants a value directly into the in-memory
// store, bypassing the Insert existence check.
func Seed(s Store, key string, value []byte) {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.values[key] = append([]byte(nil), value...)
	}
}
