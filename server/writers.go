package server

import (
	"github.com/gin-gonic/gin"

	"github.com/atlasdocs/atlaschat/models"
	"github.com/atlasdocs/atlaschat/protocol"
)

// FrameWriter writes encoded event frames straight to a gin response body,
// flushing after every frame so text deltas render as they arrive.
type FrameWriter struct {
	Context *gin.Context
}

func (w *FrameWriter) WriteEvent(ev models.StreamEvent) error {
	frame, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	_, err = w.Context.Writer.Write(frame)
	return err
}

func (w *FrameWriter) Flush() {
	w.Context.Writer.Flush()
}
