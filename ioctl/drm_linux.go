//go:build linux

package ioctl

import (
	"os"
	"strings"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gfxcore/hw"
	"golang.org/x/sys/unix"
)

const prelimVersionPath = "/sys/module/i915/prelim_uapi_version"

// FileDrm is a Drm backed by an opened DRM render node
type FileDrm struct {
	fd            int
	product       hw.Product
	prelimVersion string
}

var _ Drm = &FileDrm{}

// OpenFileDrm opens the render node at path and identifies the product behind it
func OpenFileDrm(path string) (*FileDrm, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}

	drm := &FileDrm{fd: fd}

	getParam := GetParam{Param: paramChipsetID}
	ret := drm.Ioctl(RequestGetParam, unsafe.Pointer(&getParam))
	if ret != 0 {
		_ = unix.Close(fd)
		return nil, errors.Wrapf(unix.Errno(-ret), "failed to read the chipset id of %s", path)
	}

	product, ok := hw.ProductForDeviceID(uint16(getParam.Value))
	if !ok {
		_ = unix.Close(fd)
		return nil, errors.Newf("%s is an unsupported device 0x%04x", path, getParam.Value)
	}
	drm.product = product

	version, err := os.ReadFile(prelimVersionPath)
	if err == nil {
		drm.prelimVersion = strings.TrimSpace(string(version))
	}

	return drm, nil
}

func (d *FileDrm) Ioctl(request Request, arg unsafe.Pointer) int {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(request), uintptr(arg))
		if errno == 0 {
			return 0
		}
		if errno != unix.EINTR && errno != unix.EAGAIN {
			return -int(errno)
		}
	}
}

func (d *FileDrm) PrelimVersion() string { return d.prelimVersion }
func (d *FileDrm) Product() hw.Product    { return d.product }

func (d *FileDrm) Close() error {
	return errors.Wrap(unix.Close(d.fd), "failed to close render node")
}
