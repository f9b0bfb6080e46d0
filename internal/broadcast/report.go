package broadcast

import (
	"strconv"
	"time"

	kit "relaybot/internal/transport"
	"relaybot/pkg/tgui"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeBlocked Outcome = "blocked"
	OutcomeDeleted Outcome = "deleted"
	OutcomeOther   Outcome = "other"
)

// outcomeOf maps a delivery error onto a report bucket.
func outcomeOf(err error) Outcome {
	switch kit.KindOf(err) {
	case "":
		return OutcomeSuccess
	case kit.FailureForbidden:
		return OutcomeBlocked
	case kit.FailureBadRequest:
		return OutcomeDeleted
	default:
		return OutcomeOther
	}
}

// Report summarises one fan-out. Successful+Blocked+Deleted+Failed == Total.
type Report struct {
	Total      int
	Successful int
	Blocked    int
	Deleted    int
	Failed     int
	WithImage  bool
	Took       time.Duration
}

func (r *Report) add(o Outcome) {
	switch o {
	case OutcomeSuccess:
		r.Successful++
	case OutcomeBlocked:
		r.Blocked++
	case OutcomeDeleted:
		r.Deleted++
	default:
		r.Failed++
	}
}

// Consistent reports whether every recipient landed in exactly one bucket.
func (r Report) Consistent() bool {
	return r.Successful+r.Blocked+r.Deleted+r.Failed == r.Total
}

// HTML renders the owner-facing summary.
func (r Report) HTML() string {
	num := func(n int) string { return tgui.Code(strconv.Itoa(n)).String() }
	return "<b>" + tgui.U("Broadcast Completed").String() + "</b>\n" +
		"Total Users: " + num(r.Total) + "\n" +
		"Successful: " + num(r.Successful) + "\n" +
		"Blocked Users: " + num(r.Blocked) + "\n" +
		"Deleted Accounts: " + num(r.Deleted) + "\n" +
		"Unsuccessful: " + num(r.Failed)
}
