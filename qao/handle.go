package qao

// Handle[T] is a non-owning, freely copyable reference to an attached object.
// It never keeps the object alive and never destroys it; Get reports whether
// the id still resolves to a live object of the expected type, which is how
// a stale handle (its object long since detached and the slot reused) is
// told apart from a live one.
type Handle[T Object] struct {
	scheduler *Scheduler
	id        ObjectId
}

// NewHandle wraps id as a non-owning handle into scheduler. It does not
// validate that id currently resolves; Get performs that check on every
// call, the way a stale raw handle resolves to nothing rather than garbage.
func NewHandle[T Object](scheduler *Scheduler, id ObjectId) Handle[T] {
	return Handle[T]{scheduler: scheduler, id: id}
}

// Id returns the id this handle names.
func (h Handle[T]) Id() ObjectId {
	return h.id
}

// IsNull reports whether the handle names no object.
func (h Handle[T]) IsNull() bool {
	return h.scheduler == nil || h.id.IsNull()
}

// Get resolves the handle, returning ok=false if the scheduler no longer has
// a live object at this id, or the live object is not of type T.
func (h Handle[T]) Get() (t T, ok bool) {
	if h.scheduler == nil {
		return t, false
	}
	obj, found := h.scheduler.find(h.id)
	if !found {
		return t, false
	}
	t, ok = obj.(T)
	return t, ok
}

// OwningHandle[T] additionally owns the object's lifetime: Destroy detaches
// and destroys it. OwningHandle is not meant to be copied — copying it does
// not transfer or duplicate ownership, it produces a second handle that will
// independently attempt to destroy the same object, which is a caller bug.
// Use NonOwning to obtain a safe-to-copy Handle once ownership is no longer
// needed here, and Release to hand ownership elsewhere without destroying.
type OwningHandle[T Object] struct {
	h        Handle[T]
	released bool
}

// NewOwningHandle wraps id as an owning handle into scheduler.
func NewOwningHandle[T Object](scheduler *Scheduler, id ObjectId) OwningHandle[T] {
	return OwningHandle[T]{h: Handle[T]{scheduler: scheduler, id: id}}
}

// Id returns the id this handle names.
func (o *OwningHandle[T]) Id() ObjectId {
	return o.h.id
}

// IsNull reports whether the handle names no object.
func (o *OwningHandle[T]) IsNull() bool {
	return o.released || o.h.IsNull()
}

// Get resolves the handle, as Handle.Get does.
func (o *OwningHandle[T]) Get() (t T, ok bool) {
	if o.released {
		return t, false
	}
	return o.h.Get()
}

// NonOwning returns a freely copyable non-owning Handle to the same object
// and releases this handle's ownership without destroying the object.
func (o *OwningHandle[T]) NonOwning() Handle[T] {
	o.released = true
	return o.h
}

// Release hands ownership away without destroying the object, returning the
// id so the caller can re-wrap it (e.g. into another OwningHandle) if it is
// taking over ownership responsibility.
func (o *OwningHandle[T]) Release() ObjectId {
	o.released = true
	return o.h.id
}

// Destroy detaches and destroys the owned object. It is a no-op if the
// handle is null or has already been released/destroyed.
func (o *OwningHandle[T]) Destroy() {
	if o.released || o.h.scheduler == nil {
		return
	}
	o.h.scheduler.destroy(o.h.id)
	o.released = true
}
