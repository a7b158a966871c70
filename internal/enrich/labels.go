package enrich

// Entity types stored in the entities table.
const (
	TypePerson = "PERSON"
	TypeOrg    = "ORG"
	TypePlace  = "PLACE"
	TypeEvent  = "EVENT"
)

// MapLabel translates a backend NER label to the domain's entity-type set.
// Unmapped labels are dropped, not invented.
func MapLabel(label string) (string, bool) {
	switch label {
	case "PERSON":
		return TypePerson, true
	case "ORG", "ORGANIZATION":
		return TypeOrg, true
	case "GPE", "LOC", "LOCATION":
		return TypePlace, true
	case "EVENT":
		return TypeEvent, true
	default:
		return "", false
	}
}
