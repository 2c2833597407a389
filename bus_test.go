package mil1553

import (
	"testing"

	"github.com/GoAethereal/cancel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S5
func TestSendModeCommand_scenario(t *testing.T) {
	status := NewStatusWord(MustSingleRTAddr(5), false, false, false, false, false, false, false, false)
	data := DataWordFromU16(0xABCD)
	bus := &RecordingBus{Queued: []Word{status, data}}
	bc := &BusController{Bus: bus}

	var out uint16
	got, err := bc.SendModeCommand(cancel.New(), MustSingleRTAddr(5), TransmitLastCommand, &out)
	require.NoError(t, err)

	wantCmd, err := NewModeCommand(MustSingleRTAddr(5), TransmitLastCommand)
	require.NoError(t, err)

	require.Len(t, bus.Written, 1)
	assert.Equal(t, wantCmd.Value(), bus.Written[0].Value())
	require.NotNil(t, got)
	assert.Equal(t, status.Value(), got.Value())
	assert.Equal(t, uint16(0xABCD), out)
	assert.Equal(t, 0, bus.Remaining())
}

// S6
func TestSendTransfer_scenario(t *testing.T) {
	bus := &RecordingBus{}
	bc := &BusController{Bus: bus}

	err := bc.SendTransfer(cancel.New(), MustSingleRTAddr(3), 2, []uint16{0x1111, 0x2222, 0x3333})
	require.NoError(t, err)

	wantCmd, err := NewDataTransfer(MustSingleRTAddr(3), Receive, 2, 3)
	require.NoError(t, err)

	require.Len(t, bus.Written, 4)
	assert.Equal(t, wantCmd.Value(), bus.Written[0].Value())
	assert.Equal(t, KindCommand, bus.Written[0].Kind())
	assert.Equal(t, uint16(0x1111), bus.Written[1].Value())
	assert.Equal(t, uint16(0x2222), bus.Written[2].Value())
	assert.Equal(t, uint16(0x3333), bus.Written[3].Value())
}

func TestSendTransfer_delegatesToBroadcast(t *testing.T) {
	bus := &RecordingBus{}
	bc := &BusController{Bus: bus}

	require.NoError(t, bc.SendTransfer(cancel.New(), Broadcast, 2, []uint16{0x1}))

	wantCmd, err := NewDataTransfer(Broadcast, Receive, 2, 1)
	require.NoError(t, err)
	require.Len(t, bus.Written, 2)
	assert.Equal(t, wantCmd.Value(), bus.Written[0].Value())
}

func TestSendTransfer_rejectsOverLongTransfer(t *testing.T) {
	bc := &BusController{Bus: &RecordingBus{}}
	data := make([]uint16, 32)
	err := bc.SendTransfer(cancel.New(), MustSingleRTAddr(1), 1, data)
	var invalid InvalidArgumentError
	assert.ErrorAs(t, err, &invalid)
}

func TestSendModeCommand_broadcastSkipsStatusRead(t *testing.T) {
	bus := &RecordingBus{}
	bc := &BusController{Bus: bus}

	got, err := bc.SendModeCommand(cancel.New(), Broadcast, Synchronize, nil)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, bus.Remaining())
}

func TestSendModeCommand_receiveDataWord(t *testing.T) {
	status := NewStatusWord(MustSingleRTAddr(9), false, false, false, false, false, false, false, false)
	bus := &RecordingBus{Queued: []Word{status}}
	bc := &BusController{Bus: bus}

	in := uint16(0x4242)
	got, err := bc.SendModeCommand(cancel.New(), MustSingleRTAddr(9), SynchronizeWithDataWord, &in)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, bus.Written, 2)
	assert.Equal(t, KindData, bus.Written[1].Kind())
	assert.Equal(t, uint16(0x4242), bus.Written[1].Value())
}

func TestSendModeCommand_rejectsInvalidCode(t *testing.T) {
	bc := &BusController{Bus: &RecordingBus{}}
	_, err := bc.SendModeCommand(cancel.New(), MustSingleRTAddr(1), Invalid, nil)
	assert.Error(t, err)
}

func TestSendModeCommand_rejectsMissingDataSlot(t *testing.T) {
	bc := &BusController{Bus: &RecordingBus{}}
	_, err := bc.SendModeCommand(cancel.New(), MustSingleRTAddr(1), TransmitLastCommand, nil)
	assert.Error(t, err)
}

func TestSendModeCommand_protocolErrorOnWrongKind(t *testing.T) {
	bus := &RecordingBus{Queued: []Word{CommandWordFromU16(0)}}
	bc := &BusController{Bus: bus}

	_, err := bc.SendModeCommand(cancel.New(), MustSingleRTAddr(1), TransmitStatusWord, nil)
	var protoErr ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, KindStatus, protoErr.Expected)
	assert.Equal(t, KindCommand, protoErr.Got)
}

func TestSendModeCommand_canceledWhileWaitingForLock(t *testing.T) {
	bc := &BusController{Bus: &RecordingBus{}}
	require.NoError(t, bc.mutex().lock(cancel.New()))
	defer bc.mutex().unlock()

	sig := cancel.New()
	sig.Cancel()
	_, err := bc.SendModeCommand(sig, MustSingleRTAddr(1), TransmitStatusWord, nil)
	assert.ErrorIs(t, err, ErrCanceled)
}

// blockingBus never returns from ReadNext, for exercising TimeoutBus
// without racing a panic across goroutines.
type blockingBus struct{}

func (blockingBus) WriteWord(Word) {}
func (blockingBus) ReadNext() Word {
	select {}
}

func TestTimeoutBus_surfacesErrTimeout(t *testing.T) {
	tb := NewTimeoutBus(blockingBus{}, 1)
	bc := &BusController{Bus: tb}

	_, err := bc.SendModeCommand(cancel.New(), MustSingleRTAddr(1), TransmitStatusWord, nil)
	assert.ErrorIs(t, err, ErrTimeout)
}
