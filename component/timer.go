package component

// TimeoutMessage is posted into a Component's queue when one of its
// timers fires. Component.Run intercepts it directly rather than handing
// it to the Dispatcher, since resolving staleness requires the
// TimerManager's own bookkeeping.
type TimeoutMessage struct {
	TimerID uint64
}
