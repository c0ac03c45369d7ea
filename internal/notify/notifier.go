package notify

import "time"

// Summary is the end-of-run report handed to a notifier.
type Summary struct {
	Mode        string
	Accounts    int
	Succeeded   int
	Failed      int
	TotalPoints float64
	Elapsed     time.Duration
}

type Notifier interface {
	RunFinished(s Summary) error
}

// Nop is used when notifications are disabled.
type Nop struct{}

func (Nop) RunFinished(Summary) error { return nil }
