package camera

import (
	"time"

	"github.com/smazurov/v4lcap/pkg/linuxav/v4l2"
)

// Device is the kernel side of a session. *v4l2.Device implements it.
type Device interface {
	QueryCapability() (v4l2.Capability, error)
	ResetCrop() error
	SetFormat(f *v4l2.PixFormat) error
	GetFormat() (v4l2.PixFormat, error)
	RequestBuffers(count uint32) (uint32, error)
	QueryBuffer(index uint32) (length, offset uint32, err error)
	Map(offset, length uint32) ([]byte, error)
	Unmap(b []byte) error
	QueueBuffer(index uint32) error
	DequeueBuffer() (index, bytesUsed uint32, err error)
	StreamOn() error
	StreamOff() error
	WaitReadable(timeout time.Duration) (bool, error)
	Read(p []byte) (int, error)
	Close() error
}

// Opener opens the device node at path.
type Opener func(path string) (Device, error)

func openV4L2(path string) (Device, error) {
	dev, err := v4l2.OpenDevice(path)
	if err != nil {
		return nil, err
	}
	return dev, nil
}
