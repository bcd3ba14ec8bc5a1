package bridge

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/david-cermak/iot-conformance/frame"
	"github.com/david-cermak/iot-conformance/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNetForwarder(t *testing.T, port *fakePort, opts ...ConfigOption) (*NetForwarder, *net.UDPConn, *Metrics) {
	t.Helper()

	conn := listenLoopback(t)
	client, err := net.DialUDP("udp", nil, conn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	metrics := newMetrics()
	fwd := NewNetForwarder(port, conn, newTestConfig(t, opts...), metrics)

	return fwd, client, metrics
}

func waitWrite(t *testing.T, port *fakePort) []byte {
	t.Helper()

	select {
	case line := <-port.written:
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for serial write")
		return nil
	}
}

func TestNetForwarder_WritesEncodedLine(t *testing.T) {
	port := newFakePort()
	fwd, client, metrics := newTestNetForwarder(t, port)

	_, err := client.Write([]byte{0x00, 0x01, 0xff})
	require.NoError(t, err)

	assert.True(t, fwd.Forward(context.Background()))
	assert.Equal(t, "00 01 ff\r", string(waitWrite(t, port)))

	snap := metrics.Snapshot()
	assert.EqualValues(t, 1, snap.NetReceived)
	assert.EqualValues(t, 1, snap.SerialWritten)
}

func TestNetForwarder_EmptyDatagram(t *testing.T) {
	port := newFakePort()
	fwd, client, _ := newTestNetForwarder(t, port)

	_, err := client.Write(nil)
	require.NoError(t, err)

	assert.True(t, fwd.Forward(context.Background()))
	assert.Equal(t, "\r", string(waitWrite(t, port)))
}

func TestNetForwarder_ReceiveTimeout(t *testing.T) {
	port := newFakePort()
	fwd, _, metrics := newTestNetForwarder(t, port)

	begin := time.Now()
	assert.True(t, fwd.Forward(context.Background()))
	elapsed := time.Since(begin)

	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Empty(t, port.Writes())
	assert.EqualValues(t, 0, metrics.Snapshot().NetReceived)
}

func TestNetForwarder_TruncatesToBufferSize(t *testing.T) {
	port := newFakePort()
	fwd, client, _ := newTestNetForwarder(t, port, WithRecvBufferSize(4))

	_, err := client.Write([]byte{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	assert.True(t, fwd.Forward(context.Background()))
	assert.Equal(t, "01 02 03 04\r", string(waitWrite(t, port)))
}

func TestNetForwarder_WriteErrorIsTransient(t *testing.T) {
	port := newFakePort()
	port.failWrites(1)
	fwd, client, metrics := newTestNetForwarder(t, port)
	ctx := context.Background()

	_, err := client.Write([]byte{0xaa})
	require.NoError(t, err)
	assert.True(t, fwd.Forward(ctx))
	assert.Empty(t, port.Writes())

	_, err = client.Write([]byte{0xbb})
	require.NoError(t, err)
	assert.True(t, fwd.Forward(ctx))
	assert.Equal(t, "bb\r", string(waitWrite(t, port)))

	snap := metrics.Snapshot()
	assert.EqualValues(t, 2, snap.NetReceived)
	assert.EqualValues(t, 1, snap.SerialWriteErrs)
	assert.EqualValues(t, 1, snap.SerialWritten)
}

func TestNetForwarder_ClosedSocketStops(t *testing.T) {
	port := newFakePort()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	fwd := NewNetForwarder(port, conn, newTestConfig(t), newMetrics())
	assert.False(t, fwd.Forward(context.Background()))
}

func TestNetForwarder_BurstKeepsOrder(t *testing.T) {
	const count = 100

	port := newFakePort()
	fwd, client, _ := newTestNetForwarder(t, port)

	taskMgr := NewTaskManager(context.Background(), logger.NewNopMockLogger())
	require.NoError(t, taskMgr.Start(NetToSerialTask, fwd.Forward, nil))
	defer func() {
		taskMgr.Stop()
		_ = taskMgr.WaitTask(NetToSerialTask, time.Second)
	}()

	for i := 0; i < count; i++ {
		_, err := client.Write([]byte{byte(i), 0x55})
		require.NoError(t, err)
	}

	for i := 0; i < count; i++ {
		line := waitWrite(t, port)
		payload, err := frame.DecodeWire(line)
		require.NoError(t, err)
		require.Equal(t, []byte{byte(i), 0x55}, payload, "line %d", i)
	}
}

func TestNetForwarder_StopsWithinRecvTimeout(t *testing.T) {
	const recvTimeout = 100 * time.Millisecond

	port := newFakePort()
	fwd, _, _ := newTestNetForwarder(t, port, WithRecvTimeout(recvTimeout))

	taskMgr := NewTaskManager(context.Background(), logger.NewNopMockLogger())
	require.NoError(t, taskMgr.Start(NetToSerialTask, fwd.Forward, nil))
	time.Sleep(30 * time.Millisecond)

	begin := time.Now()
	taskMgr.Stop()
	require.NoError(t, taskMgr.WaitTask(NetToSerialTask, 2*recvTimeout))
	assert.LessOrEqual(t, time.Since(begin), recvTimeout+50*time.Millisecond)
}
