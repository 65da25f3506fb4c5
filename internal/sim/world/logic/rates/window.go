package rates

// Window is a fixed tick window counter: at most Max events per Ticks ticks.
type Window struct {
	Ticks uint64
	Max   int
}

// Allow counts one event at nowTick against the window that began at startTick.
// It returns the updated window state and, when refused, the ticks left until the window reopens.
func (w Window) Allow(nowTick uint64, startTick uint64, count int) (newStart uint64, newCount int, ok bool, cooldownTicks uint64) {
	newStart = startTick
	newCount = count
	if w.Ticks == 0 || w.Max <= 0 {
		return newStart, newCount, true, 0
	}

	if nowTick-newStart >= w.Ticks {
		newStart = nowTick
		newCount = 0
	}
	newCount++
	if newCount <= w.Max {
		return newStart, newCount, true, 0
	}
	return newStart, newCount, false, (newStart + w.Ticks) - nowTick
}
