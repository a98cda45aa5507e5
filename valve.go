package replay

import "sync"

// StatusWatermarkValve is a minimal reference Valve implementation: it tracks
// one watermark and one stream-status per channel, and emits the aggregate
// (the maximum watermark across non-idle channels, once each of them has
// reported) whenever it increases.
// The real production valve lives outside this package (spec §1 lists it as
// an external collaborator); this type exists so the input processor and
// force-feeder can be exercised end-to-end without a network-attached valve.
type StatusWatermarkValve struct {
	callbacks ValveCallbacks

	mu               sync.Mutex
	channelWatermark []int64
	channelIdle      []bool
	lastEmitted      int64
	lastStatusActive bool
	everEmitted      bool
}

const watermarkUnset = int64(-1) << 62

// NewStatusWatermarkValve constructs a valve tracking numChannels input
// channels, invoking callbacks whenever the aggregate watermark advances or
// the aggregate stream status toggles.
func NewStatusWatermarkValve(numChannels int, callbacks ValveCallbacks) *StatusWatermarkValve {
	watermarks := make([]int64, numChannels)
	for i := range watermarks {
		watermarks[i] = watermarkUnset
	}

	return &StatusWatermarkValve{
		callbacks:        callbacks,
		channelWatermark: watermarks,
		channelIdle:      make([]bool, numChannels),
		lastEmitted:      watermarkUnset,
		lastStatusActive: true,
	}
}

// InputWatermark records channel's new watermark and, if it moves the
// aggregate (maximum) watermark forward, invokes ValveCallbacks.HandleWatermark.
func (v *StatusWatermarkValve) InputWatermark(wm Watermark, channel int) error {
	v.mu.Lock()
	v.channelWatermark[channel] = wm.TimestampMillis

	aggregate, ok := v.aggregateWatermarkLocked()
	emit := ok && aggregate > v.lastEmitted
	if emit {
		v.lastEmitted = aggregate
	}
	v.mu.Unlock()

	if !emit || v.callbacks.HandleWatermark == nil {
		return nil
	}
	return v.callbacks.HandleWatermark(Watermark{TimestampMillis: aggregate})
}

// InputStreamStatus records channel's new status and, if it moves the
// aggregate status, invokes ValveCallbacks.HandleStreamStatus.
func (v *StatusWatermarkValve) InputStreamStatus(status StreamStatus, channel int) error {
	v.mu.Lock()
	v.channelIdle[channel] = status.Idle

	anyActive := false
	for _, idle := range v.channelIdle {
		if !idle {
			anyActive = true
			break
		}
	}

	emit := anyActive != v.lastStatusActive
	if emit {
		v.lastStatusActive = anyActive
	}
	v.mu.Unlock()

	if !emit || v.callbacks.HandleStreamStatus == nil {
		return nil
	}
	return v.callbacks.HandleStreamStatus(StreamStatus{Idle: !anyActive})
}

// aggregateWatermarkLocked returns the output watermark once every non-idle
// channel has reported at least one watermark: the maximum watermark seen
// across those channels. Until every non-idle channel has reported, no
// aggregate exists yet and ok is false — a channel that has never reported
// must not be silently skipped, or an early-reporting channel's watermark
// would be emitted before a slower channel has said anything at all (spec's
// own scenario 4 pins this exact behavior; see DESIGN.md for why this
// reference valve aggregates by maximum rather than the canonical
// minimum-across-channels a production watermark valve would use). Caller
// must hold mu.
func (v *StatusWatermarkValve) aggregateWatermarkLocked() (int64, bool) {
	aggregate := int64(0)
	first := true

	for i, wm := range v.channelWatermark {
		if v.channelIdle[i] {
			continue
		}
		if wm == watermarkUnset {
			return 0, false
		}
		if first || wm > aggregate {
			aggregate = wm
			first = false
		}
	}

	if first {
		return 0, false
	}
	return aggregate, true
}
