/*
priority.go - Requester class to priority rank mapping

PURPOSE:
  A closed enumeration of requester classes mapped to fixed integer ranks
  via a total function. Unknown classes are rejected explicitly rather
  than defaulted silently.

  The rank is recorded on each reservation but is ADVISORY ONLY: it does
  not affect slot admission order. Admission among concurrent requests is
  governed solely by the ledger's capacity invariant, with no fairness or
  priority ordering. Whether rank should ever gate admission is an open
  product question; until it is answered the engine records and surfaces
  the rank and nothing more.
*/
package schedule

// RequesterClass is the closed enumeration of holder classes.
type RequesterClass string

const (
	ClassAdmin    RequesterClass = "Admin"
	ClassVIP      RequesterClass = "VIP"
	ClassSadhu    RequesterClass = "Sadhu"
	ClassCivilian RequesterClass = "Civilian"
)

// Lower rank means higher priority.
var classRanks = map[RequesterClass]int{
	ClassAdmin:    1,
	ClassVIP:      2,
	ClassSadhu:    3,
	ClassCivilian: 4,
}

// ResolveRank maps a requester class to its integer priority rank.
// Unknown classes return ErrUnknownRequesterClass.
func ResolveRank(class RequesterClass) (int, error) {
	rank, ok := classRanks[class]
	if !ok {
		return 0, ErrUnknownRequesterClass
	}
	return rank, nil
}

// KnownClass reports whether the class belongs to the enumeration.
func KnownClass(class RequesterClass) bool {
	_, ok := classRanks[class]
	return ok
}
