package acquisition

// Progress reports stabilization progress after each discarded sample.
type Progress struct {
	TrialID  string  `json:"trial_id"`
	Done     int     `json:"done"`
	Total    int     `json:"total"`
	Fraction float64 `json:"fraction"`
}

// Window is the display window: the most recent samples of the run, at most
// Config.WindowLength of them. Observers must treat it as read-only.
type Window struct {
	TrialID  string    `json:"trial_id"`
	Accepted int       `json:"accepted"`
	Times    []float64 `json:"times"`
	Values   []float64 `json:"values"`
}

func (w Window) Len() int { return len(w.Values) }

func (w Window) clone() Window {
	out := w
	out.Times = append([]float64(nil), w.Times...)
	out.Values = append([]float64(nil), w.Values...)
	return out
}

// Observer receives events from the acquisition loop, in order, on the loop's
// goroutine. Events never influence the engine's state transitions.
type Observer interface {
	OnProgress(Progress)
	OnDisplay(Window)
}

// ObserverFuncs adapts plain functions to an Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Progress func(Progress)
	Display  func(Window)
}

func (f ObserverFuncs) OnProgress(p Progress) {
	if f.Progress != nil {
		f.Progress(p)
	}
}

func (f ObserverFuncs) OnDisplay(w Window) {
	if f.Display != nil {
		f.Display(w)
	}
}

type nopObserver struct{}

func (nopObserver) OnProgress(Progress) {}
func (nopObserver) OnDisplay(Window)    {}
