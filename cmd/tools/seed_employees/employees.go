package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/noah-isme/bizledger/internal/commission"
	"github.com/noah-isme/bizledger/internal/common"
	"github.com/noah-isme/bizledger/internal/money"
)

type employeeRecord struct {
	ID                   string `json:"id" validate:"required,uuid"`
	BusinessID           string `json:"businessId" validate:"required,uuid"`
	Name                 string `json:"name" validate:"required,max=120"`
	CommissionType       string `json:"commissionType" validate:"required,oneof=percentage fixed"`
	CommissionPercentage string `json:"commissionPercentage"`
	FixedCommission      string `json:"fixedCommission"`
}

// readEmployees decodes a JSON array of employee records and converts them
// into commission settings. The first invalid record aborts the batch.
func readEmployees(r io.Reader) ([]commission.Employee, error) {
	var records []employeeRecord
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode employees: %w", err)
	}

	out := make([]commission.Employee, 0, len(records))
	for i, rec := range records {
		if err := common.Validator().Struct(rec); err != nil {
			return nil, fmt.Errorf("employee %d: %v", i, common.ValidationDetails(err))
		}
		emp, err := rec.toEmployee()
		if err != nil {
			return nil, fmt.Errorf("employee %d: %w", i, err)
		}
		out = append(out, emp)
	}
	return out, nil
}

func (r employeeRecord) toEmployee() (commission.Employee, error) {
	typ, err := commission.ParseType(r.CommissionType)
	if err != nil {
		return commission.Employee{}, err
	}
	emp := commission.Employee{
		ID:             uuid.MustParse(r.ID),
		BusinessID:     uuid.MustParse(r.BusinessID),
		Name:           r.Name,
		CommissionType: typ,
	}
	switch typ {
	case commission.TypePercentage:
		pct, err := money.ParseRate(valueOr(r.CommissionPercentage, "0"))
		if err != nil {
			return commission.Employee{}, err
		}
		if err := money.CheckPercent(pct); err != nil {
			return commission.Employee{}, fmt.Errorf("%w: %w", commission.ErrInvalidPercentage, err)
		}
		emp.CommissionPercentage = pct
	case commission.TypeFixed:
		fixed, err := money.Parse(valueOr(r.FixedCommission, "0"))
		if err != nil {
			return commission.Employee{}, err
		}
		if fixed.IsNegative() {
			return commission.Employee{}, commission.ErrNegativeAmount
		}
		emp.FixedCommission = fixed
	}
	return emp, nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
