package session

import "sync/atomic"

// Metrics contains atomic counters of a Session.
// They can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// ConnectCount indicates the number of links established.
	ConnectCount atomic.Uint64
	// ConnectFailCount indicates the number of failed connect attempts.
	ConnectFailCount atomic.Uint64
	// DisconnectCount indicates the number of links torn down, for any reason.
	DisconnectCount atomic.Uint64

	// CmdSendCount indicates the number of commands written to the link.
	CmdSendCount atomic.Uint64
	// CmdDropCount indicates the number of commands rejected with a full queue.
	CmdDropCount atomic.Uint64
	// FrameRecvCount indicates the number of inbound frames delivered.
	FrameRecvCount atomic.Uint64

	// BytesSent and BytesRecv count raw link bytes.
	BytesSent atomic.Uint64
	BytesRecv atomic.Uint64

	// IOErrorCount indicates the number of read/write failures on a link.
	IOErrorCount atomic.Uint64
}

func (m *Metrics) incConnectCount()     { m.ConnectCount.Add(1) }
func (m *Metrics) incConnectFailCount() { m.ConnectFailCount.Add(1) }
func (m *Metrics) incDisconnectCount()  { m.DisconnectCount.Add(1) }
func (m *Metrics) incCmdDropCount()     { m.CmdDropCount.Add(1) }
func (m *Metrics) incFrameRecvCount()   { m.FrameRecvCount.Add(1) }
func (m *Metrics) incIOErrorCount()     { m.IOErrorCount.Add(1) }

func (m *Metrics) addCmdSent(n int) {
	m.CmdSendCount.Add(1)
	m.BytesSent.Add(uint64(n))
}

func (m *Metrics) addBytesRecv(n int) {
	m.BytesRecv.Add(uint64(n))
}
