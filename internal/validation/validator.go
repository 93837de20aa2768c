package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"eqhuma/internal/domain"

	"github.com/go-playground/validator/v10"
)

// CreatePayment is the create-payment request shape. Struct tags cover the
// shared fields; the per-method rules live in ValidateCreate.
type CreatePayment struct {
	AmountCents int64   `json:"amount_cents" validate:"required,gt=0"`
	Currency    string  `json:"currency" validate:"required"`
	Method      string  `json:"method" validate:"required"`
	Purpose     Purpose `json:"purpose"`
	Billing     Billing `json:"billing"`
	Description string  `json:"description"`
}

type Purpose struct {
	Type   string `json:"type" validate:"required"`
	ItemID string `json:"item_id" validate:"required"`
}

type Billing struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`

	BeneficiaryAccount string `json:"beneficiary_account"`
	BankCode           string `json:"bank_code"`

	ServiceType   string `json:"service_type"`
	AgreementCode string `json:"agreement_code"`
	ReferenceCode string `json:"reference_code"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries the full field-level detail list; nothing is
// persisted when it is returned.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d invalid field(s)", len(e.Fields))
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

var validate = newValidator()

// newValidator reports field errors by json name so the response paths
// match what the client sent.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var (
	digitsRe    = regexp.MustCompile(`^[0-9]+$`)
	referenceRe = regexp.MustCompile(`^[A-Za-z0-9]{6,24}$`)
)

// ValidateCreate applies the shared struct rules and then the schema
// selected by the payment method. Returns *ValidationError or nil.
func ValidateCreate(req *CreatePayment) error {
	verr := &ValidationError{}

	if err := validate.Struct(req); err != nil {
		var fields validator.ValidationErrors
		if !okAs(err, &fields) {
			verr.add("", err.Error())
		} else {
			for _, f := range fields {
				verr.add(jsonPath(f.Namespace()), "failed "+f.Tag()+" rule")
			}
		}
	}

	if req.Currency != "" && !domain.CurrencySupported(req.Currency) {
		verr.add("currency", "unsupported currency "+req.Currency)
	}
	if req.Method != "" && !domain.MethodSupported(req.Method) {
		verr.add("method", "unsupported payment method "+req.Method)
	}
	if req.Purpose.Type != "" {
		switch req.Purpose.Type {
		case domain.PurposeCourse, domain.PurposeWebinar, domain.PurposeSubscription, domain.PurposeUtilityBill:
		default:
			verr.add("purpose.type", "unsupported purpose type "+req.Purpose.Type)
		}
	}

	switch req.Method {
	case domain.MethodBankTransfer:
		if !ValidCLABE(req.Billing.BeneficiaryAccount) {
			verr.add("billing.beneficiary_account", "must be a valid 18-digit CLABE")
		}
		if len(req.Billing.BankCode) != 3 || !digitsRe.MatchString(req.Billing.BankCode) {
			verr.add("billing.bank_code", "must be a 3-digit institution code")
		}
	case domain.MethodBillPayment:
		if !domain.BillServiceSupported(req.Billing.ServiceType) {
			verr.add("billing.service_type", "unsupported service type "+req.Billing.ServiceType)
		}
		if l := len(req.Billing.AgreementCode); l < 4 || l > 10 || !digitsRe.MatchString(req.Billing.AgreementCode) {
			verr.add("billing.agreement_code", "must be 4-10 digits")
		}
		if !referenceRe.MatchString(req.Billing.ReferenceCode) {
			verr.add("billing.reference_code", "must be 6-24 alphanumeric characters")
		}
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// ValidCLABE checks the 18-digit format and the weighted control digit
// (weights 3,7,1 over the first 17 digits).
func ValidCLABE(clabe string) bool {
	if len(clabe) != 18 || !digitsRe.MatchString(clabe) {
		return false
	}
	weights := [3]int{3, 7, 1}
	sum := 0
	for i := 0; i < 17; i++ {
		sum += int(clabe[i]-'0') * weights[i%3]
	}
	control := (10 - sum%10) % 10
	return control == int(clabe[17]-'0')
}

func okAs(err error, target *validator.ValidationErrors) bool {
	fields, ok := err.(validator.ValidationErrors)
	if ok {
		*target = fields
	}
	return ok
}

// jsonPath strips the struct name from "CreatePayment.billing.email".
func jsonPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}
