package plugins

// The frame drives the caller's progress on the plug-in's behalf. A
// progress the frame started is ended when the frame is cleaned up.

func (f *Frame) progressStart(message string) {
	prog := f.Caller.Progress
	if prog == nil {
		return
	}
	if prog.IsActive() {
		if message != "" {
			prog.SetText(message)
		}
		prog.SetValue(0)
		return
	}
	prog.Start(message, true)
	f.mu.Lock()
	f.progressStarted = true
	f.mu.Unlock()
}

func (f *Frame) progressSetValue(fraction float64) {
	prog := f.Caller.Progress
	if prog == nil {
		return
	}
	if !prog.IsActive() {
		f.progressStart("")
	}
	prog.SetValue(fraction)
}

func (f *Frame) progressPulse() {
	prog := f.Caller.Progress
	if prog == nil {
		return
	}
	if !prog.IsActive() {
		f.progressStart("")
	}
	prog.Pulse()
}

func (f *Frame) progressSetText(message string) {
	if prog := f.Caller.Progress; prog != nil {
		prog.SetText(message)
	}
}

func (f *Frame) progressEnd() {
	prog := f.Caller.Progress
	if prog == nil {
		return
	}
	if prog.IsActive() {
		prog.End()
	}
	f.mu.Lock()
	f.progressStarted = false
	f.mu.Unlock()
}
