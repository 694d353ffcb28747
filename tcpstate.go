package main

import (
	"fmt"

	"github.com/jhwbarlow/tcp-audit-common/pkg/tcpstate"
)

// Kernel TCP states defined in kernel (net/tcp_states.h)
const (
	TCPEstablished int32 = iota + 1
	TCPSynSent
	TCPSynRecv
	TCPFinWait1
	TCPFinWait2
	TCPTimeWait
	TCPClose
	TCPCloseWait
	TCPLastAck
	TCPListen
	TCPClosing
	TCPNewSynRecv
)

var kernelStates = map[int32]tcpstate.State{
	TCPEstablished: tcpstate.StateEstablished,
	TCPSynSent:     tcpstate.StateSynSent,
	TCPSynRecv:     tcpstate.StateSynReceived,
	TCPFinWait1:    tcpstate.StateFinWait1,
	TCPFinWait2:    tcpstate.StateFinWait2,
	TCPTimeWait:    tcpstate.StateTimeWait,
	TCPClose:       tcpstate.StateClosed,
	TCPCloseWait:   tcpstate.StateCloseWait,
	TCPLastAck:     tcpstate.StateLastAck,
	TCPListen:      tcpstate.StateListen,
	TCPClosing:     tcpstate.StateClosing,
	TCPNewSynRecv:  tcpstate.StateSynReceived,
}

func convertState(kernelState int32) (tcpstate.State, error) {
	state, ok := kernelStates[kernelState]
	if !ok {
		return tcpstate.State(""), fmt.Errorf("illegal kernel TCP state: %d", kernelState)
	}

	return state, nil
}
