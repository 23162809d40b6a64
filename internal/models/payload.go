package models

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// Typed views over the opaque request_data payload. The engine never
// reads these; clients and downstream consumers decode through them so
// field access is not stringly typed.

// LeavePayload carries leave request details.
type LeavePayload struct {
	LeaveType string `json:"leaveType,omitempty"`
	FromDate  string `json:"fromDate,omitempty"`
	ToDate    string `json:"toDate,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// ResourcePayload carries resource/service request details.
type ResourcePayload struct {
	ResourceName string `json:"resourceName,omitempty"`
	Quantity     int    `json:"quantity,omitempty"`
	NeededBy     string `json:"neededBy,omitempty"`
	Purpose      string `json:"purpose,omitempty"`
}

// EventPayload carries school event request details.
type EventPayload struct {
	EventName string  `json:"eventName,omitempty"`
	Venue     string  `json:"venue,omitempty"`
	EventDate string  `json:"eventDate,omitempty"`
	Budget    float64 `json:"budget,omitempty"`
}

// BudgetPayload carries budget request details.
type BudgetPayload struct {
	Amount      float64 `json:"amount,omitempty"`
	CostCenter  string  `json:"costCenter,omitempty"`
	FiscalYear  string  `json:"fiscalYear,omitempty"`
	Description string  `json:"description,omitempty"`
}

// FeeRecordPayload carries student fee / staff salary record details.
type FeeRecordPayload struct {
	SubjectID string  `json:"subjectId,omitempty"` // student or staff reference
	Amount    float64 `json:"amount,omitempty"`
	Period    string  `json:"period,omitempty"`
	Remarks   string  `json:"remarks,omitempty"`
}

// DecodePayload unmarshals raw request data into the typed variant for
// the given request type. Unknown and "other" types decode into a
// generic map. A nil payload decodes to the zero value.
func DecodePayload(t RequestType, raw datatypes.JSON) (interface{}, error) {
	if len(raw) == 0 {
		raw = datatypes.JSON(`{}`)
	}

	var target interface{}
	switch t {
	case RequestTypeLeave:
		target = &LeavePayload{}
	case RequestTypeResource:
		target = &ResourcePayload{}
	case RequestTypeEvent:
		target = &EventPayload{}
	case RequestTypeBudget:
		target = &BudgetPayload{}
	case RequestTypeFee, RequestTypeStudentFeeRecord, RequestTypeStaffSalaryRecord:
		target = &FeeRecordPayload{}
	default:
		target = &map[string]interface{}{}
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return nil, err
	}
	return target, nil
}
