package payment

const (
	GatewayMercadoPago = "mercadopago"
	GatewayPayPal      = "paypal"
)

const (
	MethodCreditCard = "credit_card"
	MethodDebitCard  = "debit_card"
	MethodPix        = "pix"
	MethodBoleto     = "boleto"
	MethodPayPal     = "paypal"
)

// Method is one storefront payment option and the gateway that serves it.
type Method struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Gateway string `json:"gateway"`
	Icon    string `json:"icon"`
	Active  bool   `json:"active"`
}

var methodCatalog = []Method{
	{ID: MethodCreditCard, Name: "Cartão de Crédito", Gateway: GatewayMercadoPago, Icon: "credit-card", Active: true},
	{ID: MethodPix, Name: "PIX", Gateway: GatewayMercadoPago, Icon: "qr-code", Active: true},
	{ID: MethodBoleto, Name: "Boleto Bancário", Gateway: GatewayMercadoPago, Icon: "receipt", Active: true},
	{ID: MethodDebitCard, Name: "Cartão de Débito", Gateway: GatewayMercadoPago, Icon: "credit-card", Active: false},
	{ID: MethodPayPal, Name: "PayPal", Gateway: GatewayPayPal, Icon: "paypal", Active: true},
}
