package model

// EmployeeRef is the read-only slice of the employee directory this engine
// consumes. The directory owns the record; the engine never writes back.
type EmployeeRef struct {
	ID         string `json:"id"`
	Department string `json:"department"`
	Position   string `json:"position"`
	Active     bool   `json:"active"`
}
