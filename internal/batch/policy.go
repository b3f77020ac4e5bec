package batch

import "fmt"

// Policy decides what a re-run does with records already in the log.
type Policy string

const (
	// PolicyAll re-dispatches every record.
	PolicyAll Policy = "all"
	// PolicySkipLogged skips records that have any row in the log.
	PolicySkipLogged Policy = "skip-logged"
	// PolicySkipInitiated skips only records whose call was already placed.
	PolicySkipInitiated Policy = "skip-initiated"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "":
		return PolicyAll, nil
	case PolicyAll, PolicySkipLogged, PolicySkipInitiated:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("batch: unknown rerun policy %q", s)
	}
}
