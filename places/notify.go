package places

// Notifier receives engine events so a presentation layer can render them
// as they happen. Implementations must be safe for concurrent use.
type Notifier interface {
	PlaceAdded(p Place)
	SearchAreaAdded(a SearchArea)
	Warn(msg string)
	SearchDone(r *Report)
}

// Notifiers fans every event out to each notifier in order.
type Notifiers []Notifier

func (ns Notifiers) PlaceAdded(p Place) {
	for _, n := range ns {
		n.PlaceAdded(p)
	}
}

func (ns Notifiers) SearchAreaAdded(a SearchArea) {
	for _, n := range ns {
		n.SearchAreaAdded(a)
	}
}

func (ns Notifiers) Warn(msg string) {
	for _, n := range ns {
		n.Warn(msg)
	}
}

func (ns Notifiers) SearchDone(r *Report) {
	for _, n := range ns {
		n.SearchDone(r)
	}
}

// logNotifier writes events to the system log.
type logNotifier struct{}

func (logNotifier) PlaceAdded(p Place) {}

func (logNotifier) SearchAreaAdded(a SearchArea) {}

func (logNotifier) Warn(msg string) {
	logf("warning: %s", msg)
}

func (logNotifier) SearchDone(r *Report) {
	logf("search %s done: %d nodes, %d requests, %d fetched, %d new places in %v",
		r.RunID, r.Nodes, r.Requests, r.Fetched, r.Inserted, r.Duration.Round(1e6))
}
