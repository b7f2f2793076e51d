package model

import "time"

// PermissionSummary is the consolidated capability view for one employee on
// one date. It aggregates across every applicable rule (union semantics) and
// is for display and reporting only; authoritative answers come from the
// decision engine, which uses precedence, not union.
type PermissionSummary struct {
	EmployeeID string    `json:"employee_id"`
	AsOf       time.Time `json:"as_of"`

	AllowedDeviceTypes    []string `json:"allowed_device_types"`
	RestrictedDeviceTypes []string `json:"restricted_device_types"`
	AllowedSoftware       []string `json:"allowed_software"`
	RestrictedSoftware    []string `json:"restricted_software"`

	MaxDevicesPerType      map[string]int `json:"max_devices_per_type"`
	MaxLicensesPerSoftware map[string]int `json:"max_licenses_per_software"`

	AutoApproveRequests    bool `json:"auto_approve_requests"`
	RequireManagerApproval bool `json:"require_manager_approval"`
}
