package validation

import (
	"testing"

	"eqhuma/internal/domain"
)

func validCardRequest() *CreatePayment {
	return &CreatePayment{
		AmountCents: 25000,
		Currency:    "MXN",
		Method:      domain.MethodCard,
		Purpose:     Purpose{Type: domain.PurposeCourse, ItemID: "course-101"},
		Billing:     Billing{Name: "Ana Torres", Email: "ana@example.com"},
	}
}

func fieldIn(err error, field string) bool {
	verr, ok := err.(*ValidationError)
	if !ok {
		return false
	}
	for _, f := range verr.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func TestValidateCreateAccepts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreatePayment)
	}{
		{"card", func(r *CreatePayment) {}},
		{"wallet", func(r *CreatePayment) { r.Method = domain.MethodWallet }},
		{"cash voucher", func(r *CreatePayment) { r.Method = domain.MethodCashVoucher }},
		{"bank transfer", func(r *CreatePayment) {
			r.Method = domain.MethodBankTransfer
			r.Billing.BeneficiaryAccount = "002010077777777771"
			r.Billing.BankCode = "002"
		}},
		{"bill payment", func(r *CreatePayment) {
			r.Method = domain.MethodBillPayment
			r.Purpose.Type = domain.PurposeUtilityBill
			r.Billing.ServiceType = "ELECTRICITY"
			r.Billing.AgreementCode = "123456"
			r.Billing.ReferenceCode = "REF001122"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCardRequest()
			tt.mutate(req)
			if err := ValidateCreate(req); err != nil {
				t.Errorf("ValidateCreate: %v (%+v)", err, err)
			}
		})
	}
}

func TestValidateCreateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreatePayment)
		field  string
	}{
		{"zero amount", func(r *CreatePayment) { r.AmountCents = 0 }, "amount_cents"},
		{"negative amount", func(r *CreatePayment) { r.AmountCents = -100 }, "amount_cents"},
		{"unsupported currency", func(r *CreatePayment) { r.Currency = "EUR" }, "currency"},
		{"unsupported method", func(r *CreatePayment) { r.Method = "CRYPTO" }, "method"},
		{"unsupported purpose", func(r *CreatePayment) { r.Purpose.Type = "DONATION" }, "purpose.type"},
		{"missing purpose item", func(r *CreatePayment) { r.Purpose.ItemID = "" }, "purpose.item_id"},
		{"bad email", func(r *CreatePayment) { r.Billing.Email = "not-an-email" }, "billing.email"},
		{"missing name", func(r *CreatePayment) { r.Billing.Name = "" }, "billing.name"},
		{"bad CLABE checksum", func(r *CreatePayment) {
			r.Method = domain.MethodBankTransfer
			r.Billing.BeneficiaryAccount = "002010077777777772"
			r.Billing.BankCode = "002"
		}, "billing.beneficiary_account"},
		{"short CLABE", func(r *CreatePayment) {
			r.Method = domain.MethodBankTransfer
			r.Billing.BeneficiaryAccount = "00201007777777777"
			r.Billing.BankCode = "002"
		}, "billing.beneficiary_account"},
		{"bad bank code", func(r *CreatePayment) {
			r.Method = domain.MethodBankTransfer
			r.Billing.BeneficiaryAccount = "002010077777777771"
			r.Billing.BankCode = "02"
		}, "billing.bank_code"},
		{"bad service type", func(r *CreatePayment) {
			r.Method = domain.MethodBillPayment
			r.Billing.ServiceType = "CABLE_TV"
			r.Billing.AgreementCode = "123456"
			r.Billing.ReferenceCode = "REF001122"
		}, "billing.service_type"},
		{"short agreement code", func(r *CreatePayment) {
			r.Method = domain.MethodBillPayment
			r.Billing.ServiceType = "WATER"
			r.Billing.AgreementCode = "123"
			r.Billing.ReferenceCode = "REF001122"
		}, "billing.agreement_code"},
		{"bad reference code", func(r *CreatePayment) {
			r.Method = domain.MethodBillPayment
			r.Billing.ServiceType = "WATER"
			r.Billing.AgreementCode = "123456"
			r.Billing.ReferenceCode = "ref!"
		}, "billing.reference_code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validCardRequest()
			tt.mutate(req)
			err := ValidateCreate(req)
			if err == nil {
				t.Fatal("ValidateCreate accepted an invalid request")
			}
			if !fieldIn(err, tt.field) {
				t.Errorf("expected a %q field error, got %+v", tt.field, err)
			}
		})
	}
}

func TestValidateCreateCollectsAllErrors(t *testing.T) {
	req := validCardRequest()
	req.AmountCents = 0
	req.Currency = "EUR"
	req.Billing.Email = "nope"
	err := ValidateCreate(req)
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(verr.Fields) < 3 {
		t.Errorf("expected at least 3 field errors, got %+v", verr.Fields)
	}
}

func TestValidCLABE(t *testing.T) {
	tests := []struct {
		clabe string
		want  bool
	}{
		{"002010077777777771", true},
		{"002010077777777772", false}, // wrong control digit
		{"00201007777777777", false},  // 17 digits
		{"0020100777777777711", false}, // 19 digits
		{"00201007777777777a", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidCLABE(tt.clabe); got != tt.want {
			t.Errorf("ValidCLABE(%q) = %v; want %v", tt.clabe, got, tt.want)
		}
	}
}
