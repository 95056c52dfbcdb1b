package simulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-stm32dfu/protocol"
)

func getStatus(t *testing.T, b *Bootloader) protocol.Status {
	t.Helper()
	buf := make([]byte, protocol.StatusResponseSize)
	n, err := b.ControlTransfer(protocol.RequestTypeIn, protocol.ReqGetStatus, 0, 0, buf, time.Second)
	require.NoError(t, err)
	st, err := protocol.ParseStatus(buf[:n])
	require.NoError(t, err)
	return st
}

func dnload(t *testing.T, b *Bootloader, value uint16, data []byte) {
	t.Helper()
	_, err := b.ControlTransfer(protocol.RequestTypeOut, protocol.ReqDnload, value, 0, data, time.Second)
	require.NoError(t, err)
}

func clearStatus(t *testing.T, b *Bootloader) {
	t.Helper()
	_, err := b.ControlTransfer(protocol.RequestTypeOut, protocol.ReqClrStatus, 0, 0, nil, time.Second)
	require.NoError(t, err)
}

func TestNewDefaults(t *testing.T) {
	b := New(WithFlashSize(4096), WithVersion(0x011A))

	assert.True(t, b.Connected())
	assert.False(t, b.Protected())
	assert.Equal(t, uint16(0x011A), b.DeviceVersion())
	assert.Equal(t, protocol.Idle, b.State())
	assert.Len(t, b.Flash(protocol.InternalFlashStart, 4096), 4096)
	assert.Nil(t, b.Flash(protocol.InternalFlashStart, 4097))
}

func TestSetAddressAndWrite(t *testing.T) {
	b := New(WithFlashSize(8192), WithWriteTime(3*time.Millisecond))

	dnload(t, b, 0, protocol.SetAddressPointerCmd(protocol.InternalFlashStart+0x800))
	assert.Equal(t, protocol.DownloadBusy, getStatus(t, b).State)
	assert.Equal(t, protocol.DownloadIdle, getStatus(t, b).State)

	dnload(t, b, 3, []byte{0x11, 0x22, 0x33, 0x44})
	st := getStatus(t, b)
	assert.Equal(t, protocol.DownloadBusy, st.State)
	assert.Equal(t, 3*time.Millisecond, st.PollTimeout)
	assert.Equal(t, protocol.DownloadIdle, getStatus(t, b).State)

	// block 1 of 4-byte blocks lands 4 bytes past the pointer
	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, b.Flash(protocol.InternalFlashStart+0x804, 4))
}

func TestNORWriteSemantics(t *testing.T) {
	b := New(WithFlashSize(4096))
	require.NoError(t, b.Poke(protocol.InternalFlashStart, []byte{0x0F}))

	dnload(t, b, 0, protocol.SetAddressPointerCmd(protocol.InternalFlashStart))
	getStatus(t, b)
	getStatus(t, b)
	dnload(t, b, 2, []byte{0xF0})
	getStatus(t, b)
	getStatus(t, b)

	assert.Equal(t, []byte{0x00}, b.Flash(protocol.InternalFlashStart, 1))
}

func TestClrStatusExecutesPending(t *testing.T) {
	b := New(WithFlashSize(4096))
	require.NoError(t, b.Poke(protocol.InternalFlashStart, []byte{1, 2}))

	dnload(t, b, 0, protocol.MassEraseCmd())
	assert.Equal(t, protocol.DownloadBusy, getStatus(t, b).State)
	clearStatus(t, b)

	assert.Equal(t, protocol.Idle, b.State())
	assert.Equal(t, []byte{0xFF, 0xFF}, b.Flash(protocol.InternalFlashStart, 2))
}

func TestAddressOutOfRange(t *testing.T) {
	b := New(WithFlashSize(4096))

	dnload(t, b, 0, protocol.SetAddressPointerCmd(0x20000000))
	getStatus(t, b)
	st := getStatus(t, b)
	assert.Equal(t, protocol.Error, st.State)
	assert.Equal(t, protocol.StatusErrAddress, st.Code)

	clearStatus(t, b)
	assert.Equal(t, protocol.Idle, b.State())
}

func TestProtectedRejectsAddress(t *testing.T) {
	b := New(WithProtected(true))

	dnload(t, b, 0, protocol.SetAddressPointerCmd(protocol.InternalFlashStart))
	getStatus(t, b)
	st := getStatus(t, b)
	assert.Equal(t, protocol.Error, st.State)
	assert.Equal(t, protocol.StatusErrVendor, st.Code)

	clearStatus(t, b)
	buf := make([]byte, 16)
	_, err := b.ControlTransfer(protocol.RequestTypeIn, protocol.ReqUpload, 2, 0, buf, time.Second)
	assert.ErrorIs(t, err, ErrStall)
}

func TestReadUnprotectResets(t *testing.T) {
	b := New(WithProtected(true), WithFlashSize(4096))
	require.NoError(t, b.Poke(protocol.InternalFlashStart, []byte{0x42}))

	dnload(t, b, 0, protocol.ReadUnprotectCmd())
	assert.Equal(t, protocol.DownloadBusy, getStatus(t, b).State)

	assert.False(t, b.Connected())
	assert.False(t, b.Protected())
	assert.Equal(t, 1, b.Resets())
	assert.Equal(t, []byte{0xFF}, b.Flash(protocol.InternalFlashStart, 1))

	n, err := b.ControlTransfer(protocol.RequestTypeOut, protocol.ReqClrStatus, 0, 0, nil, time.Second)
	assert.Equal(t, -1, n)
	assert.ErrorIs(t, err, ErrDisconnected)

	b.Reattach()
	assert.True(t, b.Connected())
	assert.Equal(t, protocol.Idle, getStatus(t, b).State)
}

func TestPageErase(t *testing.T) {
	b := New(WithFlashSize(8192), WithPageSize(1024), WithEraseTime(7*time.Millisecond))
	require.NoError(t, b.Poke(protocol.InternalFlashStart+1020, []byte{1, 2, 3, 4, 5, 6, 7, 8}))

	dnload(t, b, 0, protocol.PageEraseCmd(protocol.InternalFlashStart+1030))
	st := getStatus(t, b)
	assert.Equal(t, 7*time.Millisecond, st.PollTimeout)
	assert.Equal(t, protocol.DownloadIdle, getStatus(t, b).State)

	// page 1 starts at 1024
	assert.Equal(t, []byte{1, 2, 3, 4, 0xFF, 0xFF, 0xFF, 0xFF}, b.Flash(protocol.InternalFlashStart+1020, 8))
}

func TestUploadCommands(t *testing.T) {
	b := New()
	buf := make([]byte, 16)

	n, err := b.ControlTransfer(protocol.RequestTypeIn, protocol.ReqUpload, 0, 0, buf, time.Second)
	require.NoError(t, err)
	cmds, err := protocol.ParseCommands(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, []byte{protocol.CmdSetAddressPointer, protocol.CmdErase, protocol.CmdReadUnprotect}, cmds)
	assert.Equal(t, protocol.UploadIdle, b.State())
}

func TestUploadBlocks(t *testing.T) {
	b := New(WithFlashSize(4096))
	require.NoError(t, b.Poke(protocol.InternalFlashStart+8, []byte{9, 8, 7, 6}))

	dnload(t, b, 0, protocol.SetAddressPointerCmd(protocol.InternalFlashStart))
	getStatus(t, b)
	getStatus(t, b)
	clearStatus(t, b)

	buf := make([]byte, 4)
	n, err := b.ControlTransfer(protocol.RequestTypeIn, protocol.ReqUpload, 4, 0, buf, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{9, 8, 7, 6}, buf)
}

func TestLeaveDisconnects(t *testing.T) {
	b := New()

	dnload(t, b, 0, nil)
	assert.Equal(t, protocol.ManifestSync, b.State())
	assert.Equal(t, protocol.Manifest, getStatus(t, b).State)
	assert.False(t, b.Connected())
}

func TestStalls(t *testing.T) {
	t.Run("dnload while busy", func(t *testing.T) {
		b := New()
		dnload(t, b, 0, protocol.MassEraseCmd())

		_, err := b.ControlTransfer(protocol.RequestTypeOut, protocol.ReqDnload, 2, 0, []byte{1}, time.Second)
		assert.ErrorIs(t, err, ErrStall)
		assert.Equal(t, protocol.Error, b.State())
	})

	t.Run("unknown command", func(t *testing.T) {
		b := New()
		_, err := b.ControlTransfer(protocol.RequestTypeOut, protocol.ReqDnload, 0, 0, []byte{0x55}, time.Second)
		assert.ErrorIs(t, err, ErrStall)
	})

	t.Run("short status buffer", func(t *testing.T) {
		b := New()
		_, err := b.ControlTransfer(protocol.RequestTypeIn, protocol.ReqGetStatus, 0, 0, make([]byte, 2), time.Second)
		assert.ErrorIs(t, err, ErrStall)
	})
}

func TestFailBlock(t *testing.T) {
	b := New(WithFlashSize(4096))
	b.FailBlock(0)

	dnload(t, b, 0, protocol.SetAddressPointerCmd(protocol.InternalFlashStart))
	getStatus(t, b)
	getStatus(t, b)
	dnload(t, b, 2, []byte{0})
	getStatus(t, b)
	st := getStatus(t, b)
	assert.Equal(t, protocol.Error, st.State)
	assert.Equal(t, protocol.StatusErrWrite, st.Code)
}

func TestTransfersRecorded(t *testing.T) {
	b := New()
	dnload(t, b, 0, protocol.MassEraseCmd())
	getStatus(t, b)

	tr := b.Transfers()
	require.Len(t, tr, 2)
	assert.Equal(t, int(protocol.CmdErase), tr[0].Command)
	assert.Equal(t, 1, tr[0].Length)
	assert.Equal(t, -1, tr[1].Command)
	assert.Equal(t, uint8(protocol.ReqGetStatus), tr[1].Request)
}

func TestRelease(t *testing.T) {
	b := New()
	require.NoError(t, b.Release())
	assert.False(t, b.Connected())

	_, err := b.ControlTransfer(protocol.RequestTypeIn, protocol.ReqGetStatus, 0, 0, make([]byte, 6), time.Second)
	assert.ErrorIs(t, err, ErrDisconnected)
}
