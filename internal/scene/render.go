package scene

// Renderer draws a converged scene. It is only ever called between passes.
type Renderer interface {
	Render(root *Item)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(root *Item)

func (f RendererFunc) Render(root *Item) { f(root) }

// Nop discards every render.
var Nop Renderer = RendererFunc(func(*Item) {})
