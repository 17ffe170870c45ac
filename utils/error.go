package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// Recoverable command-boundary failures. Callers wrap these with
// fmt.Errorf("%w: ...") to attach the offending field/amount, so the UI layer
// can branch on the kind with errors.Is while still showing a readable reason.
var (
	ErrorValidation            = errors.New("validation failed")
	ErrorInsufficientFunds     = errors.New("insufficient funds")
	ErrorInsufficientInventory = errors.New("insufficient inventory")
)
