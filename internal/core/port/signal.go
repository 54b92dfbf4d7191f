package port

// RotationSignal is the only state shared between writers: a pending
// "rotate now" request.
type RotationSignal interface {
	// RequestForceRotation marks a rotation as pending. Requests made while
	// one is already pending collapse into it.
	RequestForceRotation() error
	// Observe registers a writer. The observer starts caught up: requests
	// made before Observe are not reported to it.
	Observe() (RotationObserver, error)
}

// RotationObserver is one writer's view of the signal.
type RotationObserver interface {
	// ConsumeForceRotation reports whether a request was made since this
	// observer last saw one, and clears the pending flag.
	ConsumeForceRotation() bool
	Close() error
}

// RotationInspector is implemented by signals that can report whether a
// request is still waiting for a writer to act on it.
type RotationInspector interface {
	Pending() (bool, error)
}
