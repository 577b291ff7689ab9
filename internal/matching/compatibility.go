// internal/matching/compatibility.go
package matching

import "donor-dispatch/internal/models"

// compatibleDonors maps a recipient blood type to the donor types it can receive from.
var compatibleDonors = map[models.BloodType][]models.BloodType{
	models.BloodTypeAPos:  {models.BloodTypeAPos, models.BloodTypeANeg, models.BloodTypeOPos, models.BloodTypeONeg},
	models.BloodTypeANeg:  {models.BloodTypeANeg, models.BloodTypeONeg},
	models.BloodTypeBPos:  {models.BloodTypeBPos, models.BloodTypeBNeg, models.BloodTypeOPos, models.BloodTypeONeg},
	models.BloodTypeBNeg:  {models.BloodTypeBNeg, models.BloodTypeONeg},
	models.BloodTypeABPos: {models.BloodTypeAPos, models.BloodTypeANeg, models.BloodTypeBPos, models.BloodTypeBNeg, models.BloodTypeABPos, models.BloodTypeABNeg, models.BloodTypeOPos, models.BloodTypeONeg},
	models.BloodTypeABNeg: {models.BloodTypeANeg, models.BloodTypeBNeg, models.BloodTypeABNeg, models.BloodTypeONeg},
	models.BloodTypeOPos:  {models.BloodTypeOPos, models.BloodTypeONeg},
	models.BloodTypeONeg:  {models.BloodTypeONeg},
}

// CompatibleDonorTypes returns the donor types a recipient of the given type can
// receive from. An unknown type yields a singleton containing the input so a
// request with an unexpected value still reaches exact-match donors.
func CompatibleDonorTypes(recipient models.BloodType) []models.BloodType {
	types, ok := compatibleDonors[recipient]
	if !ok {
		return []models.BloodType{recipient}
	}
	out := make([]models.BloodType, len(types))
	copy(out, types)
	return out
}

// RecipientTypes is the inverse view: every recipient type that can receive from donor.
func RecipientTypes(donor models.BloodType) []models.BloodType {
	var out []models.BloodType
	for _, recipient := range models.AllBloodTypes {
		for _, t := range compatibleDonors[recipient] {
			if t == donor {
				out = append(out, recipient)
				break
			}
		}
	}
	return out
}
