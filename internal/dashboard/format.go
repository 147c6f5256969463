package dashboard

import (
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// WaitingFooter is shown until the first data notification arrives.
const WaitingFooter = "Waiting for data.."

const (
	badgeOpen   = `<span style="font-size:1.2em;color:`
	badgeMarker = `">&#9646;</span>&nbsp;`
)

var badgeColors = map[JobStatus]string{
	StatusPending:    "black",
	StatusCompleted:  "green",
	StatusFailed:     "red",
	StatusTerminated: "darkorange",
}

// Badge renders the colored marker for a job followed by its 1-based number.
func Badge(number int, status JobStatus) string {
	color, ok := badgeColors[status]
	if !ok {
		color = badgeColors[StatusPending]
	}
	return badgeOpen + color + badgeMarker + strconv.Itoa(number)
}

func formatBadges(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, slot := range slots {
		out[i] = Badge(i+1, slot.Status)
	}
	return out
}

func formatStatusMessage(slots []Slot) string {
	return strings.Join(formatBadges(slots), " ")
}

func formatInsertFooter(executed, toExecute int64) string {
	return "Inserted " + humanize.Comma(executed) + " of " + humanize.Comma(toExecute) + " iterations"
}

func formatRecordsFooter(verb string, executed int64) string {
	return verb + " " + humanize.Comma(executed) + " records"
}
