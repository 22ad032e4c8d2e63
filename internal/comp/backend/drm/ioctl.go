package drm

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl request encoding, linux flavor.
const (
	iocWrite = 1
	iocRead  = 2

	iocNrShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNrShift | size<<iocSizeShift
}

func iowr(nr, size uintptr) uintptr {
	return ioc(iocRead|iocWrite, 'd', nr, size)
}

func ioctl(f *os.File, req uintptr, arg unsafe.Pointer) error {
	var err error
	sc, serr := f.SyscallConn()
	if serr != nil {
		return serr
	}
	cerr := sc.Control(func(fd uintptr) {
		for {
			_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
			if errno == unix.EINTR || errno == unix.EAGAIN {
				continue
			}
			if errno != 0 {
				err = errno
			}
			return
		}
	})
	if cerr != nil {
		return cerr
	}
	return err
}

// Kernel mode-setting structures, matching drm_mode.h layout.

type modeCardRes struct {
	fbIDPtr         uint64
	crtcIDPtr       uint64
	connectorIDPtr  uint64
	encoderIDPtr    uint64
	countFBs        uint32
	countCRTCs      uint32
	countConnectors uint32
	countEncoders   uint32
	minWidth        uint32
	maxWidth        uint32
	minHeight       uint32
	maxHeight       uint32
}

type modeInfo struct {
	clock      uint32
	hdisplay   uint16
	hsyncStart uint16
	hsyncEnd   uint16
	htotal     uint16
	hskew      uint16
	vdisplay   uint16
	vsyncStart uint16
	vsyncEnd   uint16
	vtotal     uint16
	vscan      uint16
	vrefresh   uint32
	flags      uint32
	typ        uint32
	name       [32]byte
}

const modeTypePreferred = 1 << 3

type modeGetConnector struct {
	encodersPtr     uint64
	modesPtr        uint64
	propsPtr        uint64
	propValuesPtr   uint64
	countModes      uint32
	countProps      uint32
	countEncoders   uint32
	encoderID       uint32
	connectorID     uint32
	connectorType   uint32
	connectorTypeID uint32
	connection      uint32
	mmWidth         uint32
	mmHeight        uint32
	subpixel        uint32
	pad             uint32
}

const connectionConnected = 1

type modeGetEncoder struct {
	encoderID      uint32
	encoderType    uint32
	crtcID         uint32
	possibleCRTCs  uint32
	possibleClones uint32
}

type modeCreateDumb struct {
	height uint32
	width  uint32
	bpp    uint32
	flags  uint32
	handle uint32
	pitch  uint32
	size   uint64
}

type modeMapDumb struct {
	handle uint32
	pad    uint32
	offset uint64
}

type modeDestroyDumb struct {
	handle uint32
}

type modeFBCmd struct {
	fbID   uint32
	width  uint32
	height uint32
	pitch  uint32
	bpp    uint32
	depth  uint32
	handle uint32
}

type modeCRTC struct {
	setConnectorsPtr uint64
	countConnectors  uint32
	crtcID           uint32
	fbID             uint32
	x                uint32
	y                uint32
	gammaSize        uint32
	modeValid        uint32
	mode             modeInfo
}

var (
	reqModeGetResources = iowr(0xA0, unsafe.Sizeof(modeCardRes{}))
	reqModeGetCRTC      = iowr(0xA1, unsafe.Sizeof(modeCRTC{}))
	reqModeSetCRTC      = iowr(0xA2, unsafe.Sizeof(modeCRTC{}))
	reqModeGetEncoder   = iowr(0xA6, unsafe.Sizeof(modeGetEncoder{}))
	reqModeGetConnector = iowr(0xA7, unsafe.Sizeof(modeGetConnector{}))
	reqModeAddFB        = iowr(0xAE, unsafe.Sizeof(modeFBCmd{}))
	reqModeRmFB         = iowr(0xAF, unsafe.Sizeof(uint32(0)))
	reqModeCreateDumb   = iowr(0xB2, unsafe.Sizeof(modeCreateDumb{}))
	reqModeMapDumb      = iowr(0xB3, unsafe.Sizeof(modeMapDumb{}))
	reqModeDestroyDumb  = iowr(0xB4, unsafe.Sizeof(modeDestroyDumb{}))
)

// connectorTypeNames maps DRM_MODE_CONNECTOR_* to the names userspace
// knows outputs by.
var connectorTypeNames = map[uint32]string{
	0:  "Unknown",
	1:  "VGA",
	2:  "DVI-I",
	3:  "DVI-D",
	4:  "DVI-A",
	5:  "Composite",
	6:  "SVIDEO",
	7:  "LVDS",
	8:  "Component",
	9:  "DIN",
	10: "DP",
	11: "HDMI-A",
	12: "HDMI-B",
	13: "TV",
	14: "eDP",
	15: "Virtual",
	16: "DSI",
	17: "DPI",
	18: "Writeback",
	19: "SPI",
	20: "USB",
}
