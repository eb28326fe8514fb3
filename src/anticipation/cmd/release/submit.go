package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"rtcore/src/anticipation"
	arm "rtcore/src/hardware/arm-cortex-a53"
	"rtcore/src/joy"
	"rtcore/src/lib/upbeat"
)

type submission struct {
	offset  uint64 //into the code region, page aligned
	memory  uint64 //bytes of memory requested for the job
	tries   int    //0 waits for a free slot
	backoff time.Duration
	format  bool //format the ring if nobody has
}

// ringIn finds the ring in the mapped window, formatting it when asked to
// and it is not there yet.
func ringIn(mem []byte, l joy.Layout, format bool) (*anticipation.Ring, error) {
	ringMem := mem[l.RingBase-l.WindowBase():]
	r, err := anticipation.Attach(ringMem)
	if errors.Is(err, anticipation.ErrNotFormatted) && format {
		return anticipation.Format(ringMem, l.RingSlots)
	}
	return r, err
}

// submit copies the image into the code region and pushes its descriptor.
// mem is the whole window, starting at the heap.
func submit(mem []byte, l joy.Layout, img *image, s submission) (anticipation.JobDescriptor, error) {
	var d anticipation.JobDescriptor
	if uint64(len(mem)) < l.WindowSize() {
		return d, fmt.Errorf("window is %#x bytes, layout needs %#x", len(mem), l.WindowSize())
	}
	if s.offset&arm.PageMask != 0 {
		return d, fmt.Errorf("code offset %#x is not page aligned", s.offset)
	}
	size := uint64(len(img.data))
	if s.offset+size > l.CodeSize || s.offset+size < s.offset {
		return d, fmt.Errorf("%s (%#x bytes at %#x) does not fit in the %#x byte code region",
			img.name, size, s.offset, l.CodeSize)
	}
	if size > l.LowWindow {
		return d, fmt.Errorf("%s is %#x bytes, jobs only see %#x", img.name, size, l.LowWindow)
	}
	r, err := ringIn(mem, l, s.format)
	if err != nil {
		return d, fmt.Errorf("ring: %v", err)
	}

	code := l.CodeBase - l.WindowBase() + s.offset
	copy(mem[code:code+size], img.data)
	d = anticipation.JobDescriptor{
		EntryPoint:    l.CodeBase + s.offset,
		ImageSize:     size,
		MemoryRequest: s.memory,
	}

	if s.tries == 0 {
		r.Push(d)
		return d, nil
	}
	// every failed attempt uses up a ticket
	for i := 0; i < s.tries; i++ {
		if err = r.TryPush(d); err == nil {
			return d, nil
		}
		time.Sleep(s.backoff)
	}
	return d, fmt.Errorf("gave up after %d tries: %w", s.tries, err)
}

// imageLimit is the largest image submit could ever place with layout l.
func imageLimit(l joy.Layout) uint64 {
	if l.CodeSize < l.LowWindow {
		return l.CodeSize
	}
	return l.LowWindow
}

// bootParams describes l the way the kernel expects to find it.
func bootParams(l joy.Layout) *upbeat.BootParams {
	return &upbeat.BootParams{
		EntryPoint:  l.KernelBase,
		KernelStart: l.KernelBase,
		KernelLast:  l.KernelEnd(),
		CounterFreq: l.CounterFreq,
		HeapStart:   l.HeapBase,
		HeapEnd:     l.HeapBase + l.HeapSize,
		CodeStart:   l.CodeBase,
		CodeEnd:     l.CodeBase + l.CodeSize,
		RingStart:   l.RingBase,
		RingSlots:   uint64(l.RingSlots),
	}
}

// encodeParams lays the block out little endian, field by field, as the
// control call wants it.
func encodeParams(p *upbeat.BootParams) ([]byte, error) {
	buf := bytes.Buffer{}
	if err := binary.Write(&buf, binary.LittleEndian, p); err != nil {
		return nil, fmt.Errorf("encoding boot parameters: %v", err)
	}
	return buf.Bytes(), nil
}
