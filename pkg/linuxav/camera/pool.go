package camera

import (
	"errors"
	"log/slog"
)

// bufferPool owns the frame memory of a session: the driver's mmap buffers
// or a single heap buffer for read I/O.
type bufferPool struct {
	dev     Device
	method  IOMethod
	logger  *slog.Logger
	buffers [][]byte
	// lost marks mmap buffers that could not be handed back to the driver.
	lost     []bool
	lostSize int
}

// newBufferPool allocates and maps the pool. On failure every mapping made
// so far is released; closing the device is left to the caller.
func newBufferPool(dev Device, method IOMethod, sizeImage uint32, logger *slog.Logger) (*bufferPool, *Error) {
	p := &bufferPool{
		dev:    dev,
		method: method,
		logger: logger,
	}

	if method == IOMethodRead {
		p.buffers = [][]byte{make([]byte, sizeImage)}
		return p, nil
	}

	granted, err := dev.RequestBuffers(requestedBuffers)
	if err != nil {
		return nil, newError("request buffers", ErrInsufficientBuffers, err)
	}
	if granted < minBuffers {
		p.release()
		return nil, newError("request buffers", ErrInsufficientBuffers, nil)
	}

	for i := range granted {
		length, offset, err := dev.QueryBuffer(i)
		if err != nil {
			p.release()
			return nil, newError("query buffer", ErrMapFailed, err)
		}

		data, err := dev.Map(offset, length)
		if err != nil {
			p.release()
			return nil, newError("map buffer", ErrMapFailed, err)
		}
		p.buffers = append(p.buffers, data)
	}
	p.lost = make([]bool, len(p.buffers))

	logger.Debug("Mapped capture buffers", "count", len(p.buffers))
	return p, nil
}

// release unmaps whatever has been mapped and returns the buffers to the
// driver. Only used while unwinding a failed init.
func (p *bufferPool) release() {
	for _, b := range p.buffers {
		if err := p.dev.Unmap(b); err != nil {
			p.logger.Error("Failed to unmap buffer", "error", err)
		}
	}
	p.buffers = nil
	if _, err := p.dev.RequestBuffers(0); err != nil {
		p.logger.Debug("Failed to release driver buffers", "error", err)
	}
}

func (p *bufferPool) size() int {
	return len(p.buffers)
}

// begin queues every buffer and starts streaming. On failure the buffers
// already queued are reclaimed so a later begin starts from an empty queue.
func (p *bufferPool) begin() *Error {
	if p.method == IOMethodRead {
		return nil
	}

	for i := range p.buffers {
		if err := p.dev.QueueBuffer(uint32(i)); err != nil {
			p.reclaim()
			return newError("queue buffer", ErrStreamStart, err)
		}
		p.lost[i] = false
	}
	p.lostSize = 0

	if err := p.dev.StreamOn(); err != nil {
		p.reclaim()
		return newError("stream on", ErrStreamStart, err)
	}
	return nil
}

// reclaim takes every queued buffer back from the driver. Stream-off
// dequeues all buffers even when streaming never started.
func (p *bufferPool) reclaim() {
	if err := p.dev.StreamOff(); err != nil {
		p.logger.Debug("Failed to reclaim queued buffers", "error", err)
	}
}

// end stops streaming. The driver dequeues every buffer on stream-off.
func (p *bufferPool) end() *Error {
	if p.method == IOMethodRead {
		return nil
	}
	if err := p.dev.StreamOff(); err != nil {
		return newError("stream off", ErrStreamStop, err)
	}
	return nil
}

// requeue hands buffer index back to the driver. A failure marks the
// buffer lost until the next begin.
func (p *bufferPool) requeue(index int) error {
	err := p.dev.QueueBuffer(uint32(index))
	if err != nil && !p.lost[index] {
		p.lost[index] = true
		p.lostSize++
	}
	return err
}

// exhausted reports whether no buffer is left with the driver.
func (p *bufferPool) exhausted() bool {
	return p.method == IOMethodMMAP && p.lostSize >= len(p.buffers)
}

// close unmaps every buffer, continuing past failures.
func (p *bufferPool) close() error {
	if p.method == IOMethodRead {
		p.buffers = nil
		return nil
	}

	var errs []error
	for i, b := range p.buffers {
		if err := p.dev.Unmap(b); err != nil {
			p.logger.Error("Failed to unmap buffer", "index", i, "error", err)
			errs = append(errs, newError("unmap buffer", ErrUnmap, err))
		}
	}
	p.buffers = nil
	p.lost = nil
	p.lostSize = 0
	return errors.Join(errs...)
}
