package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/charityconnect/charityconnect-backend/pkg/errors"
)

func TestValidateAllocations(t *testing.T) {
	verified := map[uint]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 9: false}

	cases := []struct {
		name  string
		rows  []AllocationInput
		ok    bool
		field string
	}{
		{"sixty forty", []AllocationInput{{1, 60}, {2, 40}}, true, ""},
		{"single hundred", []AllocationInput{{1, 100}}, true, ""},
		{"under total", []AllocationInput{{1, 60}, {2, 30}}, false, "beneficiaries.total"},
		{"over total", []AllocationInput{{1, 60}, {2, 50}}, false, "beneficiaries.total"},
		{"empty", nil, false, "beneficiaries"},
		{"zero percent", []AllocationInput{{1, 0}, {2, 100}}, false, "beneficiaries[0].percent"},
		{"over hundred", []AllocationInput{{1, 101}}, false, "beneficiaries[0].percent"},
		{"duplicate charity", []AllocationInput{{1, 50}, {1, 50}}, false, "beneficiaries[1].charity_id"},
		{"unverified", []AllocationInput{{9, 100}}, false, "beneficiaries[0].charity_id"},
		{"unknown charity", []AllocationInput{{42, 100}}, false, "beneficiaries[0].charity_id"},
		{"too many", []AllocationInput{{1, 20}, {2, 20}, {3, 20}, {4, 20}, {5, 10}, {6, 10}}, false, "beneficiaries"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateAllocations(tc.rows, verified)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
			details, ok := typed.Details().(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details, tc.field)
		})
	}
}
