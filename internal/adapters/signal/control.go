package signal

import "github.com/dkeye/Desk/internal/core"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, core.KindPong, "", nil)
}
