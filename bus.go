package mil1553

import (
	"fmt"
	"sync"
	"time"

	"github.com/GoAethereal/cancel"
	"github.com/charmbracelet/log"
)

// Bus is the abstract half-duplex physical layer a Bus Controller
// drives. Implementations handle sync waves, parity, and Manchester
// encoding; this package only ever sees the 16 payload bits of each
// word. The baseline interface is assumed infallible — there is no
// error return, matching spec.md §6. The BusController recovers only
// the panic TimeoutBus raises on an expired deadline; any other panic
// from WriteWord or ReadNext, including one carrying a TransportError,
// propagates out of the BusController call unrecovered. See TimeoutBus
// for the one kind of failure (a hung ReadNext) this package layers in
// natively.
type Bus interface {
	// WriteWord emits one word to the physical layer.
	WriteWord(w Word)
	// ReadNext blocks until the next word arrives and returns it,
	// already classified by role.
	ReadNext() Word
}

// BusControllerOptions configures a BusController the way
// modbus.Options/modbus.Config configure a modbus Client or Server.
type BusControllerOptions struct {
	// DefaultTimeout, if nonzero, is applied by NewBusController by
	// wrapping the supplied Bus in a TimeoutBus. Leave zero to drive
	// the Bus directly with no deadline.
	DefaultTimeout time.Duration
}

// Verify validates the options, rejecting a negative timeout.
func (o BusControllerOptions) Verify() error {
	if o.DefaultTimeout < 0 {
		return InvalidArgumentError{Reason: "default timeout must not be negative"}
	}
	return nil
}

// BusController issues transfers and mode commands to Remote Terminals
// over an abstract Bus. It is a stateless strategy over the bus: one
// call runs a single transaction to completion and the controller
// retains nothing between calls. Safe to drive from multiple
// goroutines (the controller serializes access to Bus), though the
// protocol itself has no use for concurrent transactions in flight.
type BusController struct {
	// Bus is the physical layer this controller drives.
	Bus Bus
	// Logger, if non-nil, receives one debug line per transaction and
	// one warn line per protocol error. Nil means silence.
	Logger *log.Logger

	mtxOnce sync.Once
	mtx     cancelMutex
}

// mutex lazily initializes and returns the controller's cancelMutex, so
// a BusController built as a bare struct literal (BusController{Bus:
// bus}, the way the teacher builds a Client) works without an explicit
// constructor call.
func (bc *BusController) mutex() cancelMutex {
	bc.mtxOnce.Do(func() {
		bc.mtx = newCancelMutex()
	})
	return bc.mtx
}

// NewBusController builds a BusController over bus, applying opts.
// A nonzero opts.DefaultTimeout wraps bus in a TimeoutBus.
func NewBusController(bus Bus, opts BusControllerOptions) (*BusController, error) {
	if err := opts.Verify(); err != nil {
		return nil, err
	}
	if opts.DefaultTimeout > 0 {
		bus = NewTimeoutBus(bus, opts.DefaultTimeout)
	}
	return &BusController{Bus: bus}, nil
}

func (bc *BusController) logDebugf(format string, args ...interface{}) {
	if bc.Logger != nil {
		bc.Logger.Debug(fmt.Sprintf(format, args...))
	}
}

func (bc *BusController) logWarnf(format string, args ...interface{}) {
	if bc.Logger != nil {
		bc.Logger.Warn(fmt.Sprintf(format, args...))
	}
}

// checkCanceled returns ErrCanceled if ctx is already done, else nil.
// It is checked before every blocking Bus call so a caller who
// canceled between transaction steps doesn't pay for one more
// ReadNext.
func checkCanceled(ctx cancel.Context) error {
	select {
	case <-ctx.Done():
		return ErrCanceled
	default:
		return nil
	}
}

// readNext calls Bus.ReadNext, recovering a timeoutPanic raised by a
// TimeoutBus-wrapped Bus and turning it back into an ordinary error.
func (bc *BusController) readNext() (w Word, err error) {
	defer func() {
		if r := recover(); r != nil {
			if tp, ok := r.(timeoutPanic); ok {
				err = tp.err
				return
			}
			panic(r)
		}
	}()
	return bc.Bus.ReadNext(), nil
}

func (bc *BusController) expectStatus(ctx cancel.Context) (StatusWord, error) {
	if err := checkCanceled(ctx); err != nil {
		return StatusWord{}, err
	}
	w, err := bc.readNext()
	if err != nil {
		return StatusWord{}, err
	}
	sw, ok := w.(StatusWord)
	if !ok {
		err := ProtocolError{Expected: KindStatus, Got: w.Kind()}
		bc.logWarnf("%v", err)
		return StatusWord{}, err
	}
	return sw, nil
}

func (bc *BusController) expectData(ctx cancel.Context) (DataWord, error) {
	if err := checkCanceled(ctx); err != nil {
		return DataWord{}, err
	}
	w, err := bc.readNext()
	if err != nil {
		return DataWord{}, err
	}
	dw, ok := w.(DataWord)
	if !ok {
		err := ProtocolError{Expected: KindData, Got: w.Kind()}
		bc.logWarnf("%v", err)
		return DataWord{}, err
	}
	return dw, nil
}

// SendTransfer issues a BC→RT data transfer: one Command word
// addressed to addr with T/R=Receive, followed by each word of data in
// order. No Status word is consumed afterward — this controller is
// emit-only for receive transfers, matching the behavior of the
// reference implementation's send_transfer (see DESIGN.md).
//
// len(data) must be at most 31; subaddress must not be 0b00000 or
// 0b11111. If addr is Broadcast, this delegates to
// SendBroadcastTransfer.
func (bc *BusController) SendTransfer(ctx cancel.Context, addr RTAddr, subaddress uint8, data []uint16) error {
	if addr.IsBroadcast() {
		return bc.SendBroadcastTransfer(ctx, subaddress, data)
	}
	if len(data) > 31 {
		return InvalidArgumentError{Reason: "transfer carries more than 31 data words"}
	}
	cmd, err := NewDataTransfer(addr, Receive, subaddress, uint8(len(data)))
	if err != nil {
		return err
	}

	if err := bc.mutex().lock(ctx); err != nil {
		return err
	}
	defer bc.mutex().unlock()

	bc.logDebugf("send_transfer addr=%s subaddress=%d words=%d", addr, subaddress, len(data))
	bc.Bus.WriteWord(cmd)
	for _, v := range data {
		bc.Bus.WriteWord(DataWordFromU16(v))
	}
	return nil
}

// SendBroadcastTransfer is SendTransfer addressed to every RT. No
// Status response is possible — RTs never respond to a broadcast.
func (bc *BusController) SendBroadcastTransfer(ctx cancel.Context, subaddress uint8, data []uint16) error {
	if len(data) > 31 {
		return InvalidArgumentError{Reason: "transfer carries more than 31 data words"}
	}
	cmd, err := NewDataTransfer(Broadcast, Receive, subaddress, uint8(len(data)))
	if err != nil {
		return err
	}

	if err := bc.mutex().lock(ctx); err != nil {
		return err
	}
	defer bc.mutex().unlock()

	bc.logDebugf("send_broadcast_transfer subaddress=%d words=%d", subaddress, len(data))
	bc.Bus.WriteWord(cmd)
	for _, v := range data {
		bc.Bus.WriteWord(DataWordFromU16(v))
	}
	return nil
}

// SendModeCommand is the unified mode-command dispatcher. data is an
// in/out slot: pass nil when no data word travels in either direction,
// a pointer to the word to send when code's options require the BC to
// transmit one (options.TR == Receive), or a pointer the RT's data
// word is written into when code's options require the BC to receive
// one (options.TR == Transmit).
//
// Returns the RT's Status word for a non-broadcast command, or nil for
// a broadcast command (no Status response is possible). Word-kind
// mismatches on read surface as ProtocolError.
func (bc *BusController) SendModeCommand(ctx cancel.Context, addr RTAddr, code ModeCode, data *uint16) (*StatusWord, error) {
	if code == Invalid {
		return nil, InvalidArgumentError{Reason: "cannot issue an Invalid mode code"}
	}
	opts := code.AssociatedOptions()
	if !opts.BroadcastAllowed && addr.IsBroadcast() {
		return nil, InvalidArgumentError{Reason: fmt.Sprintf("mode code %s does not allow a broadcast address", code)}
	}
	if opts.RequiresDataWord && data == nil {
		return nil, InvalidArgumentError{Reason: fmt.Sprintf("mode code %s requires a data word slot", code)}
	}

	cmd, err := NewModeCommand(addr, code)
	if err != nil {
		return nil, err
	}

	if err := bc.mutex().lock(ctx); err != nil {
		return nil, err
	}
	defer bc.mutex().unlock()

	bc.logDebugf("send_mode_command addr=%s code=%s", addr, code)
	bc.Bus.WriteWord(cmd)

	var status *StatusWord
	if opts.RequiresDataWord {
		switch opts.TR {
		case Receive:
			if err := checkCanceled(ctx); err != nil {
				return nil, err
			}
			bc.Bus.WriteWord(DataWordFromU16(*data))
		case Transmit:
			sw, err := bc.expectStatus(ctx)
			if err != nil {
				return nil, err
			}
			status = &sw
			dw, err := bc.expectData(ctx)
			if err != nil {
				return nil, err
			}
			*data = dw.Value()
		}
	}

	if addr.IsBroadcast() {
		return nil, nil
	}

	if status == nil {
		sw, err := bc.expectStatus(ctx)
		if err != nil {
			return nil, err
		}
		status = &sw
	}
	return status, nil
}
