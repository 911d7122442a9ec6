package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

// LinkingMethod identifies which evidence trail produced an equipment link.
// Values are stored in equipment_links and reported per strategy.
type LinkingMethod string

const (
	LinkingMethodViaVisits               LinkingMethod = "ViaVisits"
	LinkingMethodViaMaintenanceContracts LinkingMethod = "ViaMaintenanceContracts"
	LinkingMethodViaSalesInvoices        LinkingMethod = "ViaSalesInvoices"
	LinkingMethodViaOrderOut             LinkingMethod = "ViaOrderOut"
)

// LinkingMethodPriority is the fixed evaluation order. The first strategy to
// resolve an equipment item wins; later strategies are not consulted for it.
var LinkingMethodPriority = []LinkingMethod{
	LinkingMethodViaVisits,
	LinkingMethodViaMaintenanceContracts,
	LinkingMethodViaSalesInvoices,
	LinkingMethodViaOrderOut,
}

func (m LinkingMethod) IsValid() bool {
	switch m {
	case LinkingMethodViaVisits, LinkingMethodViaMaintenanceContracts,
		LinkingMethodViaSalesInvoices, LinkingMethodViaOrderOut:
		return true
	}
	return false
}

// Value implements the driver.Valuer interface
func (m LinkingMethod) Value() (driver.Value, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("invalid linking method: %s", string(m))
	}
	return string(m), nil
}

// Scan implements the sql.Scanner interface
func (m *LinkingMethod) Scan(value interface{}) error {
	if value == nil {
		return errors.New("linking method cannot be null")
	}
	switch v := value.(type) {
	case string:
		*m = LinkingMethod(v)
	case []byte:
		*m = LinkingMethod(v)
	default:
		return fmt.Errorf("cannot scan %T into LinkingMethod", value)
	}
	if !m.IsValid() {
		return fmt.Errorf("invalid linking method: %s", string(*m))
	}
	return nil
}
