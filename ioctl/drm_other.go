//go:build !linux

package ioctl

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gfxcore/hw"
)

// FileDrm is a Drm backed by an opened DRM render node. Render nodes only exist on linux.
type FileDrm struct{}

var _ Drm = &FileDrm{}

func OpenFileDrm(path string) (*FileDrm, error) {
	return nil, errors.Newf("cannot open %s: DRM render nodes require linux", path)
}

func (d *FileDrm) Ioctl(request Request, arg unsafe.Pointer) int { return -1 }
func (d *FileDrm) PrelimVersion() string                         { return "" }
func (d *FileDrm) Product() hw.Product                           { return hw.ProductUnknown }
func (d *FileDrm) Close() error                                  { return nil }
