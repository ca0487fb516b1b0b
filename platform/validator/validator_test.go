package validator

import "testing"

type contactForm struct {
	Email string `validate:"required,email"`
	Phone string `validate:"omitempty,frphone"`
}

func TestFrPhoneTag(t *testing.T) {
	val := New()

	if err := val.Struct(contactForm{Email: "a@example.com", Phone: "06 12 34 56 78"}); err != nil {
		t.Fatalf("expected valid form, got %v", err)
	}
	if err := val.Struct(contactForm{Email: "a@example.com", Phone: "123"}); err == nil {
		t.Fatal("expected invalid phone to fail validation")
	}
	if err := val.Struct(contactForm{Email: "a@example.com"}); err != nil {
		t.Fatalf("empty optional phone should pass, got %v", err)
	}
}
