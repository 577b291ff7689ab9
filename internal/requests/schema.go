// internal/requests/schema.go
package requests

import "donor-dispatch/internal/common/validation"

const createRequestSchema = `{
	"type": "object",
	"required": ["bloodGroup", "bloodUnits", "appointmentDate", "phoneNumber", "district", "hospitalName", "description"],
	"properties": {
		"bloodGroup":      {"type": "string", "enum": ["A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"]},
		"bloodUnits":      {"type": "integer", "minimum": 1, "maximum": 10},
		"appointmentDate": {"type": "string", "format": "date-time"},
		"phoneNumber":     {"type": "string", "pattern": "^[\\+]?[1-9][\\d]{0,15}$"},
		"district":        {"type": "string", "minLength": 1},
		"hospitalName":    {"type": "string", "minLength": 1},
		"description":     {"type": "string", "minLength": 1, "maxLength": 1000},
		"urgencyLevel":    {"type": "string", "enum": ["Low", "Medium", "High", "Critical"]},
		"isEmergency":     {"type": "boolean"},
		"latitude":        {"type": "number"},
		"longitude":       {"type": "number"}
	},
	"dependencies": {
		"latitude":  ["longitude"],
		"longitude": ["latitude"]
	}
}`

var createSchema = validation.MustCompile(createRequestSchema)
