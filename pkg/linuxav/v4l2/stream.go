//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrNotCharDevice is returned by OpenDevice when the path exists but is not a character device.
var ErrNotCharDevice = errors.New("not a character device")

// Device is an open V4L2 node used for format negotiation and frame streaming.
// It is a thin wrapper over the ioctl protocol and holds no buffer state;
// buffer bookkeeping belongs to the caller.
type Device struct {
	fd   int
	path string
}

// OpenDevice validates that path is a character device and opens it
// read/write and non-blocking.
func OpenDevice(path string) (*Device, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.Mode()&os.ModeCharDevice == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNotCharDevice)
	}

	fd, err := open(path)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}

	return &Device{fd: fd, path: path}, nil
}

// Path returns the device node path.
func (d *Device) Path() string {
	return d.path
}

// QueryCapability issues VIDIOC_QUERYCAP.
func (d *Device) QueryCapability() (Capability, error) {
	return queryCapability(d.fd)
}

// ResetCrop sets the crop rectangle to the driver default.
// Devices without cropping support return an error which callers may ignore.
func (d *Device) ResetCrop() error {
	cropcap := v4l2Cropcap{typ: v4l2BufTypeVideoCapture}
	if err := ioctl(d.fd, vidiocCropcap, unsafe.Pointer(&cropcap)); err != nil {
		return err
	}

	crop := v4l2Crop{
		typ: v4l2BufTypeVideoCapture,
		c:   cropcap.defrect,
	}
	return ioctl(d.fd, vidiocSCrop, unsafe.Pointer(&crop))
}

// SetFormat issues VIDIOC_S_FMT. The driver may adjust any field; f is
// updated with the values the driver settled on.
func (d *Device) SetFormat(f *PixFormat) error {
	raw := v4l2Format{typ: v4l2BufTypeVideoCapture}
	raw.pix.width = f.Width
	raw.pix.height = f.Height
	raw.pix.pixelformat = f.PixelFormat
	raw.pix.field = v4l2FieldAny

	if err := ioctl(d.fd, vidiocSFmt, unsafe.Pointer(&raw)); err != nil {
		return err
	}

	*f = pixFormatFromRaw(&raw.pix)
	return nil
}

// GetFormat issues VIDIOC_G_FMT and returns the current capture format.
func (d *Device) GetFormat() (PixFormat, error) {
	raw := v4l2Format{typ: v4l2BufTypeVideoCapture}
	if err := ioctl(d.fd, vidiocGFmt, unsafe.Pointer(&raw)); err != nil {
		return PixFormat{}, err
	}
	return pixFormatFromRaw(&raw.pix), nil
}

func pixFormatFromRaw(p *v4l2PixFormat) PixFormat {
	return PixFormat{
		Width:        p.width,
		Height:       p.height,
		PixelFormat:  p.pixelformat,
		BytesPerLine: p.bytesperline,
		SizeImage:    p.sizeimage,
	}
}

// RequestBuffers asks the driver for count mmap buffers and returns how many were granted.
// A count of zero releases all buffers.
func (d *Device) RequestBuffers(count uint32) (uint32, error) {
	req := v4l2Requestbuffers{
		count:  count,
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMMAP,
	}
	if err := ioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return 0, err
	}
	return req.count, nil
}

// QueryBuffer returns the length and mmap offset of buffer index.
func (d *Device) QueryBuffer(index uint32) (length, offset uint32, err error) {
	buf := v4l2Buffer{
		index:  index,
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMMAP,
	}
	if err = ioctl(d.fd, vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
		return 0, 0, err
	}
	return buf.length, buf.offset, nil
}

// Map maps a driver buffer into the process, shared with the kernel.
func (d *Device) Map(offset uint32, length uint32) ([]byte, error) {
	return unix.Mmap(d.fd, int64(offset), int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// Unmap releases a mapping returned by Map.
func (d *Device) Unmap(b []byte) error {
	return unix.Munmap(b)
}

// QueueBuffer hands buffer index to the driver.
func (d *Device) QueueBuffer(index uint32) error {
	buf := v4l2Buffer{
		index:  index,
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMMAP,
	}
	return ioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf))
}

// DequeueBuffer takes the next filled buffer from the driver.
// On a non-blocking device it returns unix.EAGAIN when nothing is ready.
func (d *Device) DequeueBuffer() (index, bytesUsed uint32, err error) {
	buf := v4l2Buffer{
		typ:    v4l2BufTypeVideoCapture,
		memory: v4l2MemoryMMAP,
	}
	if err = ioctl(d.fd, vidiocDqbuf, unsafe.Pointer(&buf)); err != nil {
		return 0, 0, err
	}
	return buf.index, buf.bytesused, nil
}

// StreamOn starts capture into queued buffers.
func (d *Device) StreamOn() error {
	typ := uint32(v4l2BufTypeVideoCapture)
	return ioctl(d.fd, vidiocStreamon, unsafe.Pointer(&typ))
}

// StreamOff stops capture. The driver implicitly dequeues every buffer.
func (d *Device) StreamOff() error {
	typ := uint32(v4l2BufTypeVideoCapture)
	return ioctl(d.fd, vidiocStreamoff, unsafe.Pointer(&typ))
}

// WaitReadable blocks in select(2) until the device is readable or timeout
// elapses. It reports false on timeout. EINTR is returned to the caller
// unchanged so it can decide how much of the timeout is left.
func (d *Device) WaitReadable(timeout time.Duration) (bool, error) {
	var fds unix.FdSet
	fds.Zero()
	fds.Set(d.fd)

	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	n, err := unix.Select(d.fd+1, &fds, nil, nil, &tv)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Read reads one frame for devices using the read() I/O method.
func (d *Device) Read(p []byte) (int, error) {
	return unix.Read(d.fd, p)
}

// Close closes the device node.
func (d *Device) Close() error {
	return close(d.fd)
}
