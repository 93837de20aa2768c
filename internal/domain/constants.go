package domain

import "errors"

// Canonical payment lifecycle. Every provider status vocabulary is mapped
// into this set by its adapter.
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusRefunded   = "REFUNDED"
	StatusCancelled  = "CANCELLED"
)

const (
	MethodCard         = "CARD"
	MethodCashVoucher  = "CASH_VOUCHER"
	MethodBankTransfer = "BANK_TRANSFER"
	MethodWallet       = "WALLET"
	MethodBillPayment  = "BILL_PAYMENT"
)

const (
	PurposeCourse       = "COURSE"
	PurposeWebinar      = "WEBINAR"
	PurposeSubscription = "SUBSCRIPTION"
	PurposeUtilityBill  = "UTILITY_BILL"
)

var SupportedCurrencies = []string{"MXN", "USD"}

// Bill-payment service types accepted by the interbank network.
var BillServiceTypes = []string{"ELECTRICITY", "WATER", "GAS", "INTERNET", "PHONE", "TUITION"}

var Methods = []string{MethodCard, MethodCashVoucher, MethodBankTransfer, MethodWallet, MethodBillPayment}

// Cash vouchers are paid over the counter and bill payments settle through
// the biller; neither can be reversed through us.
var refundableMethods = map[string]bool{
	MethodCard:         true,
	MethodWallet:       true,
	MethodBankTransfer: true,
}

func MethodRefundable(method string) bool {
	return refundableMethods[method]
}

func CurrencySupported(currency string) bool {
	for _, c := range SupportedCurrencies {
		if c == currency {
			return true
		}
	}
	return false
}

func MethodSupported(method string) bool {
	for _, m := range Methods {
		if m == method {
			return true
		}
	}
	return false
}

func BillServiceSupported(serviceType string) bool {
	for _, s := range BillServiceTypes {
		if s == serviceType {
			return true
		}
	}
	return false
}

// statusRank orders the lifecycle for monotonic writes. COMPLETED, FAILED
// and CANCELLED share a rank: once one of them is reached, the others may
// not overwrite it.
var statusRank = map[string]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusCompleted:  2,
	StatusFailed:     2,
	StatusCancelled:  2,
	StatusRefunded:   3,
}

func StatusRank(s string) int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

func IsTerminal(s string) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled || s == StatusRefunded
}

// IsForward reports whether moving from one status to another is forward
// progress. REFUNDED is only reachable from COMPLETED.
func IsForward(from, to string) bool {
	if to == StatusRefunded {
		return from == StatusCompleted
	}
	return StatusRank(to) > StatusRank(from)
}

// PriorStatuses returns every status that `to` is allowed to overwrite.
// Used as the guard set of the conditional status UPDATE.
func PriorStatuses(to string) []string {
	if to == StatusRefunded {
		return []string{StatusCompleted}
	}
	var priors []string
	for s, r := range statusRank {
		if r < StatusRank(to) {
			priors = append(priors, s)
		}
	}
	return priors
}

var (
	ErrNotFound         = errors.New("payment not found")
	ErrAlreadyTerminal  = errors.New("payment already in a terminal state")
	ErrNoIntent         = errors.New("payment has no provider intent")
	ErrNotRefundable    = errors.New("payment not refundable")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnknownProvider  = errors.New("unknown payment provider")
)
