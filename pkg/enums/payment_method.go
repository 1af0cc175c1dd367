package enums

import "fmt"

// PaymentMethod describes how a customer settles an order.
type PaymentMethod string

const (
	PaymentMethodCash          PaymentMethod = "CASH"
	PaymentMethodCard          PaymentMethod = "CARD"
	PaymentMethodDigitalWallet PaymentMethod = "DIGITAL_WALLET"
	PaymentMethodBankTransfer  PaymentMethod = "BANK_TRANSFER"
)

// paymentMethodGateway marks the methods charged through the card processor.
var paymentMethodGateway = map[PaymentMethod]bool{
	PaymentMethodCash:          false,
	PaymentMethodCard:          true,
	PaymentMethodDigitalWallet: true,
	PaymentMethodBankTransfer:  false,
}

func (p PaymentMethod) String() string {
	return string(p)
}

func (p PaymentMethod) IsValid() bool {
	_, ok := paymentMethodGateway[p]
	return ok
}

// UsesGateway reports whether payments of this method are charged, confirmed
// and refunded through the external processor.
func (p PaymentMethod) UsesGateway() bool {
	return paymentMethodGateway[p]
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	method := PaymentMethod(value)
	if !method.IsValid() {
		return "", fmt.Errorf("invalid payment method %q", value)
	}
	return method, nil
}
