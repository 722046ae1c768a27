package interrupt

import (
	"strconv"

	"github.com/harunnryd/bargein/pkg/frames"
)

// NewInterruptFrame tells the playback side to stop speaking.
func NewInterruptFrame(streamID string, ev Event) frames.ControlFrame {
	meta := map[string]string{
		frames.MetaSource: "interrupt",
		frames.MetaReason: "barge_in",
		frames.MetaVolume: strconv.FormatFloat(ev.Volume, 'f', 2, 64),
	}
	return frames.NewControlFrame(streamID, ev.Timestamp.UnixNano(), frames.ControlStartInterruption, meta)
}

// NewFlushFrame asks the playback side to drop queued audio.
func NewFlushFrame(streamID string, pts int64) frames.ControlFrame {
	return frames.NewControlFrame(streamID, pts, frames.ControlFlush, nil)
}

// VolumeOf reads the volume carried by an interrupt frame.
func VolumeOf(f frames.ControlFrame) float64 {
	v, err := strconv.ParseFloat(f.Meta()[frames.MetaVolume], 64)
	if err != nil {
		return 0
	}
	return v
}
