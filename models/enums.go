package models

type CurrencyCode string

const (
	CurrencyCodeUSD CurrencyCode = "USD"
	CurrencyCodeAED CurrencyCode = "AED"
	CurrencyCodeSDG CurrencyCode = "SDG"
)

func (c CurrencyCode) IsValid() bool {
	switch c {
	case CurrencyCodeUSD, CurrencyCodeAED, CurrencyCodeSDG:
		return true
	}
	return false
}

type PartnerTransactionType string

const (
	PartnerTransactionTypeDeposit    PartnerTransactionType = "deposit"
	PartnerTransactionTypeWithdrawal PartnerTransactionType = "withdrawal"
)

func (t PartnerTransactionType) IsValid() bool {
	return t == PartnerTransactionTypeDeposit || t == PartnerTransactionTypeWithdrawal
}

type InvoiceStatus string

const (
	InvoiceStatusUnpaid  InvoiceStatus = "unpaid"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

type FinancialLogOperation string

const (
	FinancialLogOperationCurrencyExchange  FinancialLogOperation = "currency_exchange"
	FinancialLogOperationPartnerDeposit    FinancialLogOperation = "partner_deposit"
	FinancialLogOperationPartnerWithdrawal FinancialLogOperation = "partner_withdrawal"
	FinancialLogOperationBalanceAdjustment FinancialLogOperation = "balance_adjustment"
	FinancialLogOperationCommissionPayout  FinancialLogOperation = "commission_payout"
	FinancialLogOperationSupplierPayment   FinancialLogOperation = "supplier_payment"
)

type NotificationReferenceType string

const (
	NotificationReferenceTypeExchange           NotificationReferenceType = "Exchange"
	NotificationReferenceTypePartnerTransaction NotificationReferenceType = "PartnerTransaction"
	NotificationReferenceTypeShipment           NotificationReferenceType = "Shipment"
	NotificationReferenceTypeLostProduct        NotificationReferenceType = "LostProduct"
	NotificationReferenceTypeSale               NotificationReferenceType = "Sale"
	NotificationReferenceTypeReturnedProduct    NotificationReferenceType = "ReturnedProduct"
	NotificationReferenceTypeInvoice            NotificationReferenceType = "Invoice"
	NotificationReferenceTypeInvoicePayment     NotificationReferenceType = "InvoicePayment"
	NotificationReferenceTypeCommissionPayment  NotificationReferenceType = "CommissionPayment"
	NotificationReferenceTypeSupplierPayment    NotificationReferenceType = "SupplierPayment"
)

type NotificationAction string

const (
	NotificationActionCreate NotificationAction = "Create"
	NotificationActionUpdate NotificationAction = "Update"
	NotificationActionDelete NotificationAction = "Delete"
)

type OutboxPublishStatus string

const (
	OutboxPublishStatusPending OutboxPublishStatus = "PENDING"
	OutboxPublishStatusSent    OutboxPublishStatus = "SENT"
	OutboxPublishStatusFailed  OutboxPublishStatus = "FAILED"
)
