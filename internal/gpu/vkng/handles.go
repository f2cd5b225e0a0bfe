package vkng

// handles maps the opaque uint64 handles the renderer sees onto vkngwrapper
// objects. Zero is never issued so it stays the null handle.
type handles[T any] struct {
	next    uint64
	objects map[uint64]T
}

func newHandles[T any]() handles[T] {
	return handles[T]{objects: make(map[uint64]T)}
}

func (h *handles[T]) add(object T) uint64 {
	h.next++
	h.objects[h.next] = object
	return h.next
}

func (h *handles[T]) get(id uint64) T {
	return h.objects[id]
}

// take removes id and reports whether it was registered, so that destroying
// a handle twice reaches the driver once.
func (h *handles[T]) take(id uint64) (T, bool) {
	object, ok := h.objects[id]
	if ok {
		delete(h.objects, id)
	}
	return object, ok
}

func (h *handles[T]) len() int {
	return len(h.objects)
}
