package blocktpl

import "slices"

// BlockHandler receives block notifications.
type BlockHandler func(*Block)

type handler struct {
	id int
	fn BlockHandler
}

type handlers struct {
	next int
	list []handler
}

func (h *handlers) add(fn BlockHandler) (cancel func()) {
	h.next++
	id := h.next
	h.list = append(h.list, handler{id: id, fn: fn})
	return func() {
		h.list = slices.DeleteFunc(h.list, func(x handler) bool { return x.id == id })
	}
}

func (h *handlers) fire(b *Block) {
	if len(h.list) == 0 {
		return
	}
	// handlers may subscribe or cancel while being called
	for _, x := range slices.Clone(h.list) {
		x.fn(b)
	}
}

// OnRenderBlock subscribes fn to "about to render" notifications. A node
// receives them for its own block and, when it is the outermost node of a
// tree, for every block rendered below it.
func (n *Node) OnRenderBlock(fn BlockHandler) (cancel func()) {
	return n.onRender.add(fn)
}

// OnLoadBlock subscribes fn to notifications for blocks grafted into n at
// run time (AddBlockAt, InsertBlockAt, Attach).
func (n *Node) OnLoadBlock(fn BlockHandler) (cancel func()) {
	return n.onLoad.add(fn)
}
