package mil1553

import "fmt"

// Wire-level constants shared by the command word codec.
const (
	subaddressModeCode0 uint8 = 0b00000 // subaddress pattern selecting a mode command
	subaddressModeCode1 uint8 = 0b11111 // subaddress pattern selecting a mode command
	broadcastAddrValue  uint8 = 0b11111 // RT address pattern meaning Broadcast
)

// Field layout, named per spec.md §6's bit table. width/lsb pairs feed
// the shared setField/readField/alignField in primitives.go.
const (
	rtAddrWidth, rtAddrLSB           = 5, 11
	trWidth, trLSB                   = 1, 10
	subaddressWidth, subaddressLSB   = 5, 5
	wdcOrModeWidth, wdcOrModeLSB     = 5, 0
	msgErrWidth, msgErrLSB           = 1, 10
	instWidth, instLSB               = 1, 9
	svcReqWidth, svcReqLSB           = 1, 8
	bcastCmdWidth, bcastCmdLSB       = 1, 4
	busyWidth, busyLSB               = 1, 3
	subsysWidth, subsysLSB           = 1, 2
	dbcWidth, dbcLSB                 = 1, 1
	termFlagWidth, termFlagLSB       = 1, 0
)

// WordKind discriminates the logical role a Word was produced for. The
// wire itself carries only 16 payload bits; the role is known to
// whichever side produced the word and asserted again by whichever
// side consumes it.
type WordKind uint8

const (
	KindCommand WordKind = iota
	KindData
	KindStatus
)

func (k WordKind) String() string {
	switch k {
	case KindCommand:
		return "Command"
	case KindData:
		return "Data"
	case KindStatus:
		return "Status"
	}
	return "Unknown"
}

// Word is the tagged union carried by the abstract bus: a CommandWord,
// DataWord, or StatusWord, each a distinct Go type implementing this
// interface. A type assertion on Word is how the Bus Controller checks
// that a word read back from the wire has the role it expected.
type Word interface {
	// Kind reports the word's logical role.
	Kind() WordKind
	// Value returns the word's raw 16-bit payload.
	Value() uint16
}

// RTAddr is either a single RT address in [0,30] or Broadcast. Single
// is never constructible with 31 — that pattern always denotes
// Broadcast.
type RTAddr struct {
	broadcast bool
	addr      uint8
}

// Broadcast addresses all RTs simultaneously.
var Broadcast = RTAddr{broadcast: true}

// SingleRTAddr builds an RTAddr addressing one RT. addr must be in
// [0,30]; 31 is rejected since it aliases Broadcast.
func SingleRTAddr(addr uint8) (RTAddr, error) {
	if addr > 30 {
		return RTAddr{}, InvalidArgumentError{Reason: fmt.Sprintf("rt address %d is out of range [0,30]", addr)}
	}
	return RTAddr{addr: addr}, nil
}

// MustSingleRTAddr is SingleRTAddr for callers constructing addresses
// from compile-time-known constants; it panics on an out-of-range
// address.
func MustSingleRTAddr(addr uint8) RTAddr {
	a, err := SingleRTAddr(addr)
	if err != nil {
		panic(err)
	}
	return a
}

// IsBroadcast reports whether addr is the Broadcast address.
func (addr RTAddr) IsBroadcast() bool { return addr.broadcast }

// Addr returns the single RT address in [0,30]. It is only meaningful
// when IsBroadcast() is false.
func (addr RTAddr) Addr() uint8 { return addr.addr }

func (addr RTAddr) wireValue() uint8 {
	if addr.broadcast {
		return broadcastAddrValue
	}
	return addr.addr
}

func (addr RTAddr) alignToWord() rawWord {
	return alignField(rtAddrWidth, rtAddrLSB, uint16(addr.wireValue()))
}

func readRTAddr(word rawWord) RTAddr {
	v := uint8(readField(word, rtAddrWidth, rtAddrLSB))
	if v == broadcastAddrValue {
		return Broadcast
	}
	return RTAddr{addr: v}
}

func (addr RTAddr) String() string {
	if addr.broadcast {
		return "Broadcast"
	}
	return fmt.Sprintf("RT%d", addr.addr)
}

// RTAction is the direction of data flow relative to the addressed RT:
// Receive means the RT receives data from the BC, Transmit means the
// RT transmits data to the BC.
type RTAction uint8

const (
	Receive RTAction = 0
	Transmit RTAction = 1
)

func (a RTAction) alignToWord() rawWord {
	return alignField(trWidth, trLSB, uint16(a))
}

func readRTAction(word rawWord) RTAction {
	if readField(word, trWidth, trLSB) == 1 {
		return Transmit
	}
	return Receive
}

func (a RTAction) String() string {
	if a == Transmit {
		return "Transmit"
	}
	return "Receive"
}

// CommandWordData is the variant occupying bits [9:0] of a CommandWord:
// either a DataTransfer (subaddress + word count) or a ModeCommandData
// (a mode code, with the subaddress field forced to the mode-command
// discriminator).
type CommandWordData interface {
	isCommandWordData()
}

// DataTransferData is the CommandWordData variant describing a normal
// data transfer: a subaddress selecting an RT buffer and a word count.
type DataTransferData struct {
	Subaddress BitField
	WordCount  BitField
}

func (DataTransferData) isCommandWordData() {}

// ModeCommandData is the CommandWordData variant describing a mode
// command: the subaddress field is overloaded as a discriminator
// (0b00000 or 0b11111) and the word-count field carries the mode code.
type ModeCommandData struct {
	Code ModeCode
}

func (ModeCommandData) isCommandWordData() {}

func encodeCommandWordData(data CommandWordData) rawWord {
	switch d := data.(type) {
	case DataTransferData:
		sub := alignField(subaddressWidth, subaddressLSB, uint16(d.Subaddress.Value()))
		wdc := alignField(wdcOrModeWidth, wdcOrModeLSB, uint16(d.WordCount.Value()))
		return sub | wdc
	case ModeCommandData:
		sub := alignField(subaddressWidth, subaddressLSB, uint16(subaddressModeCode1))
		wdc := alignField(wdcOrModeWidth, wdcOrModeLSB, uint16(d.Code.Encode()))
		return sub | wdc
	default:
		panic("mil1553: unknown CommandWordData variant")
	}
}

func decodeCommandWordData(word rawWord) CommandWordData {
	subaddr := uint8(readField(word, subaddressWidth, subaddressLSB))
	wdc := uint8(readField(word, wdcOrModeWidth, wdcOrModeLSB))
	if subaddr == subaddressModeCode0 || subaddr == subaddressModeCode1 {
		return ModeCommandData{Code: DecodeModeCode(wdc)}
	}
	return DataTransferData{
		Subaddress: NewBitField(subaddressWidth, subaddr),
		WordCount:  NewBitField(wdcOrModeWidth, wdc),
	}
}

// CommandWord is the first word of every transaction: addressee,
// direction, and either a subaddress/word-count pair or a mode code,
// packed into 16 bits.
//
//	[15:11] RT Address
//	[10]    T/R
//	[9:5]   Subaddress (0b00000/0b11111 select a mode command)
//	[4:0]   Word count, or mode code when a mode command
type CommandWord struct {
	raw rawWord
}

// NewModeCommand builds a mode-command CommandWord. The T/R bit is
// taken from code's ModeCodeOptions, never from the caller. Fails if
// code is Invalid, or if code disallows Broadcast and addr is
// Broadcast.
func NewModeCommand(addr RTAddr, code ModeCode) (CommandWord, error) {
	if code == Invalid {
		return CommandWord{}, InvalidArgumentError{Reason: "cannot construct a command from an invalid mode code"}
	}
	opts := code.AssociatedOptions()
	if !opts.BroadcastAllowed && addr.IsBroadcast() {
		return CommandWord{}, InvalidArgumentError{Reason: fmt.Sprintf("mode code %s does not allow a broadcast address", code)}
	}
	raw := addr.alignToWord() | opts.TR.alignToWord() | encodeCommandWordData(ModeCommandData{Code: code})
	return CommandWord{raw: raw}, nil
}

// NewDataTransfer builds a data-transfer CommandWord. subaddress must
// not be 0b00000 or 0b11111 (those patterns are reserved for mode
// commands); wordCount must be in [0,31] (0 conventionally means 32
// data words).
func NewDataTransfer(addr RTAddr, tr RTAction, subaddress, wordCount uint8) (CommandWord, error) {
	if subaddress == subaddressModeCode0 || subaddress == subaddressModeCode1 {
		return CommandWord{}, InvalidArgumentError{Reason: fmt.Sprintf("subaddress 0b%05b is reserved for mode commands", subaddress)}
	}
	if subaddress > 0b11111 || wordCount > 0b11111 {
		return CommandWord{}, InvalidArgumentError{Reason: "subaddress/word count must fit in 5 bits"}
	}
	data := DataTransferData{
		Subaddress: NewBitField(subaddressWidth, subaddress),
		WordCount:  NewBitField(wdcOrModeWidth, wordCount),
	}
	raw := addr.alignToWord() | tr.alignToWord() | encodeCommandWordData(data)
	return CommandWord{raw: raw}, nil
}

// CommandWordFromU16 wraps a raw 16-bit value as a CommandWord
// unconditionally, for parsing words read off the bus.
func CommandWordFromU16(value uint16) CommandWord {
	return CommandWord{raw: value}
}

// Value returns the command word's raw 16-bit payload.
func (cw CommandWord) Value() uint16 { return cw.raw }

// Kind reports KindCommand.
func (cw CommandWord) Kind() WordKind { return KindCommand }

func (cw CommandWord) String() string {
	return fmt.Sprintf("Command{addr=%s tr=%s data=%+v}", cw.GetRTAddr(), cw.GetTRBit(), cw.GetCommandData())
}

// MarshalBinary implements encoding.BinaryMarshaler over the word's
// raw 16-bit big-endian value.
func (cw CommandWord) MarshalBinary() ([]byte, error) {
	return []byte{byte(cw.raw >> 8), byte(cw.raw)}, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler, reading a
// big-endian 16-bit value.
func (cw *CommandWord) UnmarshalBinary(b []byte) error {
	if len(b) != 2 {
		return InvalidArgumentError{Reason: "command word requires exactly 2 bytes"}
	}
	cw.raw = uint16(b[0])<<8 | uint16(b[1])
	return nil
}

// GetRTAddr reads the RT Address field.
func (cw CommandWord) GetRTAddr() RTAddr {
	return readRTAddr(cw.raw)
}

// SetRTAddr rewrites the RT Address field. If the word is currently a
// mode command whose code disallows Broadcast, setting Broadcast
// fails and the word is left unchanged.
func (cw *CommandWord) SetRTAddr(addr RTAddr) error {
	if data, ok := cw.GetCommandData().(ModeCommandData); ok && addr.IsBroadcast() {
		if !data.Code.AssociatedOptions().BroadcastAllowed {
			return InvalidArgumentError{Reason: fmt.Sprintf("mode code %s does not allow a broadcast address", data.Code)}
		}
	}
	cw.raw = setField(cw.raw, rtAddrWidth, rtAddrLSB, uint16(addr.wireValue()))
	return nil
}

// GetTRBit reads the T/R bit.
func (cw CommandWord) GetTRBit() RTAction {
	return readRTAction(cw.raw)
}

// SetTRBit rewrites the T/R bit, but only if the word currently decodes
// as a DataTransfer. On a mode command the T/R bit is owned by the
// mode code and the call is a no-op.
func (cw *CommandWord) SetTRBit(tr RTAction) {
	if _, ok := cw.GetCommandData().(DataTransferData); ok {
		cw.raw = setField(cw.raw, trWidth, trLSB, uint16(tr))
	}
}

// GetCommandData reads the command-word variant: DataTransferData or
// ModeCommandData, discriminated by the subaddress field.
func (cw CommandWord) GetCommandData() CommandWordData {
	return decodeCommandWordData(cw.raw)
}

// SetCommandMode rewrites the word to a mode command carrying code,
// forcing the T/R bit to code's mandated value regardless of the
// word's prior T/R bit. If code disallows Broadcast and the word's
// current address is Broadcast, the address is coerced to Single(1) —
// the policy this library has chosen over failing the call (see
// DESIGN.md).
func (cw *CommandWord) SetCommandMode(code ModeCode) {
	opts := code.AssociatedOptions()
	cw.raw = setField(cw.raw, trWidth, trLSB, uint16(opts.TR))
	if !opts.BroadcastAllowed && cw.GetRTAddr().IsBroadcast() {
		cw.raw = setField(cw.raw, rtAddrWidth, rtAddrLSB, uint16(MustSingleRTAddr(1).wireValue()))
	}
	cw.raw = setField(cw.raw, subaddressWidth, subaddressLSB, uint16(subaddressModeCode1))
	cw.raw = setField(cw.raw, wdcOrModeWidth, wdcOrModeLSB, uint16(code.Encode()))
}

// SetDataTransfer rewrites the word to a data transfer with the given
// subaddress and word count. subaddress must not be 0b00000 or
// 0b11111.
func (cw *CommandWord) SetDataTransfer(subaddress, wordCount uint8) error {
	if subaddress == subaddressModeCode0 || subaddress == subaddressModeCode1 {
		return InvalidArgumentError{Reason: fmt.Sprintf("subaddress 0b%05b is reserved for mode commands", subaddress)}
	}
	cw.raw = setField(cw.raw, subaddressWidth, subaddressLSB, uint16(subaddress))
	cw.raw = setField(cw.raw, wdcOrModeWidth, wdcOrModeLSB, uint16(wordCount))
	return nil
}

// DataWord is an opaque 16-bit payload with no internal structure.
type DataWord struct {
	raw rawWord
}

// DataWordFromU16 wraps a raw 16-bit value as a DataWord.
func DataWordFromU16(value uint16) DataWord {
	return DataWord{raw: value}
}

// Value returns the data word's raw 16-bit payload.
func (dw DataWord) Value() uint16 { return dw.raw }

// Kind reports KindData.
func (dw DataWord) Kind() WordKind { return KindData }

// SetValue overwrites the data word's payload.
func (dw *DataWord) SetValue(value uint16) { dw.raw = value }

func (dw DataWord) String() string {
	return fmt.Sprintf("Data{0x%04X}", dw.raw)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (dw DataWord) MarshalBinary() ([]byte, error) {
	return []byte{byte(dw.raw >> 8), byte(dw.raw)}, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (dw *DataWord) UnmarshalBinary(b []byte) error {
	if len(b) != 2 {
		return InvalidArgumentError{Reason: "data word requires exactly 2 bytes"}
	}
	dw.raw = uint16(b[0])<<8 | uint16(b[1])
	return nil
}

// StatusWord is an RT's response summarising message acceptance and
// terminal state.
//
//	[15:11] RT Address
//	[10]    Message Error
//	[9]     Instrumentation
//	[8]     Service Request
//	[7:5]   (reserved)
//	[4]     Broadcast Command Received
//	[3]     Busy
//	[2]     Subsystem Flag
//	[1]     Dynamic Bus Control Accept
//	[0]     Terminal Flag
type StatusWord struct {
	raw rawWord
}

// NewStatusWord builds a StatusWord from its nine semantic fields.
// Every combination of bits is a legal status word; there is no
// cross-field validation.
func NewStatusWord(addr RTAddr, msgErr, inst, svcReq, bcastCmd, busy, subsys, dbc, terminal bool) StatusWord {
	raw := addr.alignToWord()
	raw |= alignField(msgErrWidth, msgErrLSB, boolBit(msgErr))
	raw |= alignField(instWidth, instLSB, boolBit(inst))
	raw |= alignField(svcReqWidth, svcReqLSB, boolBit(svcReq))
	raw |= alignField(bcastCmdWidth, bcastCmdLSB, boolBit(bcastCmd))
	raw |= alignField(busyWidth, busyLSB, boolBit(busy))
	raw |= alignField(subsysWidth, subsysLSB, boolBit(subsys))
	raw |= alignField(dbcWidth, dbcLSB, boolBit(dbc))
	raw |= alignField(termFlagWidth, termFlagLSB, boolBit(terminal))
	return StatusWord{raw: raw}
}

func boolBit(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

// StatusWordFromU16 wraps a raw 16-bit value as a StatusWord
// unconditionally, for parsing words read off the bus.
func StatusWordFromU16(value uint16) StatusWord {
	return StatusWord{raw: value}
}

// Value returns the status word's raw 16-bit payload.
func (sw StatusWord) Value() uint16 { return sw.raw }

// Kind reports KindStatus.
func (sw StatusWord) Kind() WordKind { return KindStatus }

func (sw StatusWord) String() string {
	return fmt.Sprintf("Status{addr=%s busy=%v terminal=%v}", sw.GetRTAddr(), sw.GetBusy(), sw.GetTerminalFlag())
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (sw StatusWord) MarshalBinary() ([]byte, error) {
	return []byte{byte(sw.raw >> 8), byte(sw.raw)}, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (sw *StatusWord) UnmarshalBinary(b []byte) error {
	if len(b) != 2 {
		return InvalidArgumentError{Reason: "status word requires exactly 2 bytes"}
	}
	sw.raw = uint16(b[0])<<8 | uint16(b[1])
	return nil
}

// GetRTAddr reads the RT Address field.
func (sw StatusWord) GetRTAddr() RTAddr { return readRTAddr(sw.raw) }

// SetRTAddr rewrites the RT Address field.
func (sw *StatusWord) SetRTAddr(addr RTAddr) { sw.raw = setField(sw.raw, rtAddrWidth, rtAddrLSB, uint16(addr.wireValue())) }

// GetMessageError reads the Message Error bit.
func (sw StatusWord) GetMessageError() bool { return readField(sw.raw, msgErrWidth, msgErrLSB) != 0 }

// SetMessageError rewrites the Message Error bit.
func (sw *StatusWord) SetMessageError(v bool) { sw.raw = setField(sw.raw, msgErrWidth, msgErrLSB, boolBit(v)) }

// GetInstrumentation reads the Instrumentation bit.
func (sw StatusWord) GetInstrumentation() bool { return readField(sw.raw, instWidth, instLSB) != 0 }

// SetInstrumentation rewrites the Instrumentation bit.
func (sw *StatusWord) SetInstrumentation(v bool) { sw.raw = setField(sw.raw, instWidth, instLSB, boolBit(v)) }

// GetServiceRequest reads the Service Request bit.
func (sw StatusWord) GetServiceRequest() bool { return readField(sw.raw, svcReqWidth, svcReqLSB) != 0 }

// SetServiceRequest rewrites the Service Request bit.
func (sw *StatusWord) SetServiceRequest(v bool) { sw.raw = setField(sw.raw, svcReqWidth, svcReqLSB, boolBit(v)) }

// GetBroadcastCommandReceived reads the Broadcast Command Received bit.
func (sw StatusWord) GetBroadcastCommandReceived() bool {
	return readField(sw.raw, bcastCmdWidth, bcastCmdLSB) != 0
}

// SetBroadcastCommandReceived rewrites the Broadcast Command Received bit.
func (sw *StatusWord) SetBroadcastCommandReceived(v bool) {
	sw.raw = setField(sw.raw, bcastCmdWidth, bcastCmdLSB, boolBit(v))
}

// GetBusy reads the Busy bit.
func (sw StatusWord) GetBusy() bool { return readField(sw.raw, busyWidth, busyLSB) != 0 }

// SetBusy rewrites the Busy bit.
func (sw *StatusWord) SetBusy(v bool) { sw.raw = setField(sw.raw, busyWidth, busyLSB, boolBit(v)) }

// GetSubsystemFlag reads the Subsystem Flag bit.
func (sw StatusWord) GetSubsystemFlag() bool { return readField(sw.raw, subsysWidth, subsysLSB) != 0 }

// SetSubsystemFlag rewrites the Subsystem Flag bit.
func (sw *StatusWord) SetSubsystemFlag(v bool) { sw.raw = setField(sw.raw, subsysWidth, subsysLSB, boolBit(v)) }

// GetDynamicBusControlAccept reads the Dynamic Bus Control Accept bit.
func (sw StatusWord) GetDynamicBusControlAccept() bool {
	return readField(sw.raw, dbcWidth, dbcLSB) != 0
}

// SetDynamicBusControlAccept rewrites the Dynamic Bus Control Accept bit.
func (sw *StatusWord) SetDynamicBusControlAccept(v bool) {
	sw.raw = setField(sw.raw, dbcWidth, dbcLSB, boolBit(v))
}

// GetTerminalFlag reads the Terminal Flag bit.
func (sw StatusWord) GetTerminalFlag() bool { return readField(sw.raw, termFlagWidth, termFlagLSB) != 0 }

// SetTerminalFlag rewrites the Terminal Flag bit.
func (sw *StatusWord) SetTerminalFlag(v bool) { sw.raw = setField(sw.raw, termFlagWidth, termFlagLSB, boolBit(v)) }
