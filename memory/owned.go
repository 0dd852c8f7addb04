package memory

// Owned is a scope guard for a constructed value. Release destructs the value
// once; Leak hands the raw pointer back for explicit destruction elsewhere.
//
//	o, err := memory.ConstructOwned(initFrame)
//	if err != nil {
//	    return err
//	}
//	defer o.Release()
type Owned[T any] struct {
	p *T
}

// Own takes ownership of p, which must come from Construct or ConstructSized.
func Own[T any](p *T) *Owned[T] {
	return &Owned[T]{p: p}
}

// ConstructOwned is Construct wrapped in an Owned guard.
func ConstructOwned[T any](init func(*T) error) (*Owned[T], error) {
	p, err := Construct(init)
	if err != nil {
		return nil, err
	}
	return Own(p), nil
}

// Get returns the guarded pointer, or nil after Release or Leak.
func (o *Owned[T]) Get() *T {
	if o == nil {
		return nil
	}
	return o.p
}

// Release destructs the value. Later calls do nothing.
func (o *Owned[T]) Release() {
	if o == nil || o.p == nil {
		return
	}
	p := o.p
	o.p = nil
	Destruct(p)
}

// Leak gives up ownership and returns the pointer. The caller becomes
// responsible for calling Destruct.
func (o *Owned[T]) Leak() *T {
	if o == nil {
		return nil
	}
	p := o.p
	o.p = nil
	return p
}
