//go:build linux || darwin

package main

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

// The driver for the reserved core exposes the shared window as a device
// that can be mapped from offset zero, and one control call that hands the
// core its boot parameters and releases it from reset.
const (
	iocWrite     = 1
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
	startCPUNr   = 1
	driverType   = 'r'
)

func iow(t uintptr, nr uintptr, size uintptr) uintptr {
	return iocWrite<<iocDirShift | size<<iocSizeShift | t<<iocTypeShift | nr
}

type window struct {
	fp  *os.File
	mem []byte
}

func openWindow(path string, size uint64) (*window, error) {
	fp, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	if st, err := fp.Stat(); err == nil && st.Mode().IsRegular() && uint64(st.Size()) < size {
		fp.Close()
		return nil, fmt.Errorf("%s is only %#x bytes, the window needs %#x", path, st.Size(), size)
	}
	mem, err := syscall.Mmap(int(fp.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		fp.Close()
		return nil, fmt.Errorf("mapping %s: %v", path, err)
	}
	return &window{fp: fp, mem: mem}, nil
}

// startCPU passes the encoded boot parameter block to the driver.
func (w *window) startCPU(params []byte) error {
	req := iow(driverType, startCPUNr, uintptr(len(params)))
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, w.fp.Fd(), req, uintptr(unsafe.Pointer(&params[0])))
	if errno != 0 {
		return fmt.Errorf("start cpu ioctl %#x: %v", req, errno)
	}
	return nil
}

func (w *window) Close() error {
	err := syscall.Munmap(w.mem)
	if cerr := w.fp.Close(); err == nil {
		err = cerr
	}
	return err
}
