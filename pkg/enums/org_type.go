package enums

import "fmt"

// OrgType distinguishes the two kinds of verifiable organisations.
type OrgType string

const (
	OrgTypeOrganiser OrgType = "organiser"
	OrgTypeCharity   OrgType = "charity"
)

var validOrgTypes = []OrgType{
	OrgTypeOrganiser,
	OrgTypeCharity,
}

func (o OrgType) IsValid() bool {
	for _, candidate := range validOrgTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

func ParseOrgType(value string) (OrgType, error) {
	for _, candidate := range validOrgTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid org type %q", value)
}
