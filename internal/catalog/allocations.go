package catalog

import (
	"fmt"

	pkgerrors "github.com/charityconnect/charityconnect-backend/pkg/errors"
)

// MaxBeneficiaries bounds the allocation rows per event.
const MaxBeneficiaries = 5

// AllocationInput names a charity and its share of event proceeds.
type AllocationInput struct {
	CharityID uint `json:"charity_id" validate:"required"`
	Percent   int  `json:"percent" validate:"required"`
}

// ValidateAllocations accepts a row set only if it has 1..5 rows, every
// percent is in [1,100], the percents sum to exactly 100, no charity repeats
// and every charity is verified. verified maps charity id to its flag.
func ValidateAllocations(rows []AllocationInput, verified map[uint]bool) error {
	fields := map[string]string{}

	if len(rows) == 0 {
		fields["beneficiaries"] = "at least one beneficiary is required"
	}
	if len(rows) > MaxBeneficiaries {
		fields["beneficiaries"] = fmt.Sprintf("at most %d beneficiaries are allowed", MaxBeneficiaries)
	}

	sum := 0
	seen := make(map[uint]struct{}, len(rows))
	for i, row := range rows {
		key := fmt.Sprintf("beneficiaries[%d]", i)
		if row.Percent < 1 || row.Percent > 100 {
			fields[key+".percent"] = "percent must be between 1 and 100"
		}
		sum += row.Percent
		if _, dup := seen[row.CharityID]; dup {
			fields[key+".charity_id"] = "charity listed more than once"
			continue
		}
		seen[row.CharityID] = struct{}{}
		if !verified[row.CharityID] {
			fields[key+".charity_id"] = "charity is not verified"
		}
	}
	if len(rows) > 0 && sum != 100 {
		fields["beneficiaries.total"] = fmt.Sprintf("allocations must total 100%%, got %d%%", sum)
	}

	if len(fields) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid beneficiary allocation").WithDetails(fields)
	}
	return nil
}

func charityIDs(rows []AllocationInput) []uint {
	ids := make([]uint, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.CharityID)
	}
	return ids
}
