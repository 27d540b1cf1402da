package sps30

// Address is the fixed SHDLC device address. The SPS30 UART interface
// is point-to-point, so the address is always zero.
const Address byte = 0x00

// Command opcodes per the SPS30 datasheet. The same opcode appears in
// the request and its response.
const (
	CmdStartMeasurement     byte = 0x00
	CmdStopMeasurement      byte = 0x01
	CmdReadMeasuredData     byte = 0x03
	CmdSleep                byte = 0x10
	CmdWakeUp               byte = 0x11
	CmdStartFanCleaning     byte = 0x56
	CmdAutoCleaningInterval byte = 0x80
	CmdDeviceInformation    byte = 0xd0
	CmdReadVersion          byte = 0xd1
	CmdReadDeviceStatus     byte = 0xd2
	CmdReset                byte = 0xd3
)

// Subcommand bytes.
const (
	subStartMeasurement byte = 0x01
	subReadInterval     byte = 0x00
	// the datasheet command table says 0x00 here too, but the worked
	// example (and real devices) use 0x05 for writes
	subWriteInterval byte = 0x05
)

// Format selects the measurement data representation requested with
// StartMeasurement. The response to ReadMeasuredData can only be
// interpreted with the format the measurement was started with; the
// frame itself does not carry it.
type Format byte

const (
	// FormatFloat requests big-endian IEEE754 values, 4 bytes per field.
	FormatFloat Format = 0x03
	// FormatUint16 requests big-endian unsigned integers, 2 bytes per
	// field, unscaled.
	FormatUint16 Format = 0x05
)

func (f Format) valid() bool {
	return f == FormatFloat || f == FormatUint16
}

// InfoKind selects which device information string to request.
type InfoKind byte

const (
	// InfoProductType identifies the sensor model ("00080000" for SPS30).
	InfoProductType InfoKind = 0x00
	// InfoSerialNumber is the unique device serial.
	InfoSerialNumber InfoKind = 0x03
)

// Response payload sizes. Measurement responses are the largest
// protocol messages; the decode buffer is sized to them.
const (
	measurementFloatSize  = 10 * 4
	measurementUint16Size = 10 * 2
	intervalSize          = 4
	versionSize           = 7
	statusSize            = 5
	maxInfoSize           = 32
)

// anyLen marks exchanges whose response length is variable (device
// information strings). Everything else has an exact expected size.
const anyLen = -1
