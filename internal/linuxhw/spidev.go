//go:build linux

package linuxhw

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/jangala-dev/tinygo-nrf70bus/hal"
)

// spidev ioctls, from linux/spi/spidev.h.
const (
	spiIOCWrMode        = 0x40016B01
	spiIOCWrBitsPerWord = 0x40016B03
	spiIOCWrMaxSpeedHz  = 0x40046B04
	spiIOCMessage1      = 0x40206B00 // SPI_IOC_MESSAGE(1)

	// SPINoCS leaves chip select to a GPIO driven by the transport.
	SPINoCS = 0x40
)

// spiIOCTransfer mirrors struct spi_ioc_transfer.
type spiIOCTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

// SPIDev is a spidev character device.
type SPIDev struct {
	mu    sync.Mutex
	fd    int
	path  string
	speed uint32
}

var _ hal.SPIController = (*SPIDev)(nil)

// OpenSPIDev opens path (e.g. /dev/spidev0.0) in the given SPI mode (0-3,
// optionally OR-ed with SPINoCS) with 8-bit words.
func OpenSPIDev(path string, mode uint8) (*SPIDev, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("linuxhw: open %s: %w", path, err)
	}
	if err := unix.IoctlSetPointerInt(fd, spiIOCWrMode, int(mode)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("linuxhw: %s: set mode %#x: %w", path, mode, err)
	}
	if err := unix.IoctlSetPointerInt(fd, spiIOCWrBitsPerWord, 8); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("linuxhw: %s: set word size: %w", path, err)
	}
	return &SPIDev{fd: fd, path: path}, nil
}

func (s *SPIDev) Configure(cfg hal.SPIConfig) error {
	if cfg.FrequencyHz == 0 {
		return hal.ErrInvalidParam
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := unix.IoctlSetPointerInt(s.fd, spiIOCWrMaxSpeedHz, int(cfg.FrequencyHz)); err != nil {
		return fmt.Errorf("linuxhw: %s: set speed %d: %w", s.path, cfg.FrequencyHz, err)
	}
	s.speed = cfg.FrequencyHz
	return nil
}

func (s *SPIDev) Tx(w, r []byte) error {
	if len(w) == 0 || (r != nil && len(r) != len(w)) {
		return hal.ErrInvalidParam
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tr := spiIOCTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&w[0]))),
		length:      uint32(len(w)),
		speedHz:     s.speed,
		bitsPerWord: 8,
	}
	if r != nil {
		tr.rxBuf = uint64(uintptr(unsafe.Pointer(&r[0])))
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(s.fd), spiIOCMessage1, uintptr(unsafe.Pointer(&tr)))
	runtime.KeepAlive(w)
	runtime.KeepAlive(r)
	switch errno {
	case 0:
		return nil
	case unix.EBUSY:
		return hal.ErrBusy
	case unix.ETIMEDOUT:
		return hal.ErrTimeout
	case unix.EINVAL:
		return hal.ErrInvalidParam
	}
	return fmt.Errorf("linuxhw: %s: transfer: %w", s.path, errno)
}

func (s *SPIDev) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}
