package node

// Observer is notified of state changes a presentation layer may want to
// render. Calls come from the node's goroutines and must not block.
type Observer interface {
	// OnInventoryChanged is called after local state may have changed.
	OnInventoryChanged()
	// OnError is called with a human-readable reason when an operation fails.
	OnError(message string)
}

type nopObserver struct{}

func (nopObserver) OnInventoryChanged() {}
func (nopObserver) OnError(string)      {}

// observerBox lets an interface value live in an atomic.Pointer.
type observerBox struct {
	Observer
}
