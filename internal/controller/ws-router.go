package controller

import (
	"github.com/tabsync/server/pkg/wsrouter"
)

func (c *controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New(c.wsError)

	mux.Handle("ALIVE", c.handleAlive)

	// playback
	mux.Handle("PLAY", c.handlePlay)
	mux.Handle("PAUSE", c.handlePause)
	mux.Handle("SEEK", c.handleSeek)
	mux.Handle("TRANSFER_HOST", c.handleTransferHost)

	// member
	mux.Handle("SET_ROLE", c.handleSetRole)
	mux.Handle("SET_LISTENING", c.handleSetListening)
	mux.Handle("REPORT_POSITION", c.handleReportPosition)

	// content
	mux.Handle("ADD_COMMENT", c.handleAddComment)
	mux.Handle("RESOLVE_COMMENT", c.handleResolveComment)
	mux.Handle("APPLY_EDIT", c.handleApplyEdit)

	return mux
}
