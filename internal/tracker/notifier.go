package tracker

// Notifier receives call lifecycle callbacks. Both methods are invoked from
// the dispatch goroutine and must not block for long.
type Notifier interface {
	// OnIncomingCall fires once per qualifying ring.
	OnIncomingCall(call Call)
	// OnCallStatusChange fires when a tracked call is answered or hung up.
	OnCallStatusChange(channel string, status Status)
}

// Notifiers fans callbacks out to every member in order.
type Notifiers []Notifier

func (ns Notifiers) OnIncomingCall(call Call) {
	for _, n := range ns {
		n.OnIncomingCall(call)
	}
}

func (ns Notifiers) OnCallStatusChange(channel string, status Status) {
	for _, n := range ns {
		n.OnCallStatusChange(channel, status)
	}
}

// NotifierFuncs adapts plain functions to Notifier. Nil fields are skipped.
type NotifierFuncs struct {
	IncomingCall     func(call Call)
	CallStatusChange func(channel string, status Status)
}

func (f NotifierFuncs) OnIncomingCall(call Call) {
	if f.IncomingCall != nil {
		f.IncomingCall(call)
	}
}

func (f NotifierFuncs) OnCallStatusChange(channel string, status Status) {
	if f.CallStatusChange != nil {
		f.CallStatusChange(channel, status)
	}
}
