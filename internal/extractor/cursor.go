package extractor

import (
	"context"
	"image"
)

// Cursor walks a FrameSource forward and tracks the index of the next frame.
type Cursor struct {
	src     FrameSource
	next    int
	observe func(index int)
}

// NewCursor returns a cursor positioned before the first frame of src
func NewCursor(src FrameSource) *Cursor {
	return &Cursor{src: src}
}

// Observe registers fn to be called with the index of every decoded frame,
// skipped frames included.
func (c *Cursor) Observe(fn func(index int)) {
	c.observe = fn
}

// Index returns the index the next Read will yield
func (c *Cursor) Index() int {
	return c.next
}

// Read decodes the next frame and returns it with its index
func (c *Cursor) Read() (image.Image, int, bool) {
	frame, ok := c.src.Read()
	if !ok {
		return nil, c.next, false
	}
	index := c.next
	c.next++
	if c.observe != nil {
		c.observe(index)
	}
	return frame, index, true
}

// Skip decodes and discards up to n frames. It returns how many frames were
// skipped, which is less than n when the stream ends or ctx is done.
func (c *Cursor) Skip(ctx context.Context, n int) (int, error) {
	skipped := 0
	for skipped < n {
		if err := ctx.Err(); err != nil {
			return skipped, err
		}
		if _, _, ok := c.Read(); !ok {
			break
		}
		skipped++
	}
	return skipped, nil
}
