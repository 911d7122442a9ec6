package models

import "time"

// LegacySalesInvoice bridges an order-out to the sales contract that billed
// it. The invoice itself carries no customer; the contract does.
type LegacySalesInvoice struct {
	SiId        int        `gorm:"column:si_id;primary_key" json:"si_id"`
	ScId        *int       `gorm:"column:sc_id" json:"sc_id"`
	OoId        *int       `gorm:"column:oo_id" json:"oo_id"`
	InvoiceDate *time.Time `gorm:"column:invoice_date" json:"invoice_date"`
}

func (LegacySalesInvoice) TableName() string {
	return "legacy_sales_invoices"
}

// LegacySalesContract is the top of the sales evidence chain and the only
// record in it that names a cus_id.
type LegacySalesContract struct {
	ScId  int  `gorm:"column:sc_id;primary_key" json:"sc_id"`
	CusId *int `gorm:"column:cus_id" json:"cus_id"`
}

func (LegacySalesContract) TableName() string {
	return "legacy_sales_contracts"
}
