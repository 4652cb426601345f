package checkout

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"
)

const (
	TemplateOrderConfirmation = "order_confirmation"
	TemplateNewOrderAlert     = "new_order_alert"
)

// Message is a rendered notification.
type Message struct {
	Template string
	OrderID  string
	To       []string
	Subject  string
	Body     string // plain text
	HTML     string // optional
}

// Dispatcher delivers rendered messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, m Message) error
}

var funcs = template.FuncMap{
	"money": func(v interface{ StringFixed(int32) string }) string { return v.StringFixed(2) },
}

var confirmationText = template.Must(template.New("text").Funcs(funcs).Parse(
	`Thank you for your order.

Order {{.Order.ID}}
{{range .Order.Lines}}- {{.ProductName}} x {{.Quantity}} @ {{money .PriceAtOrder}} = {{money .Amount}}
{{end}}
Subtotal: {{money .Order.Subtotal}}
Discount: {{money .Order.Discount}}{{with .Order.CouponCode}} ({{.}}){{end}}
Total:    {{money .Order.Total}}

Shipping to: {{.Order.ShippingAddress}}
Payment:     {{.Order.PaymentMethod}}
`))

var confirmationHTML = htmltemplate.Must(htmltemplate.New("html").Funcs(htmltemplate.FuncMap(funcs)).Parse(
	`<h2>Thank you for your order</h2>
<p>Order <strong>{{.Order.ID}}</strong></p>
<table>
<tr><th>Product</th><th>Qty</th><th>Price</th><th>Amount</th></tr>
{{range .Order.Lines}}<tr><td>{{.ProductName}}</td><td>{{.Quantity}}</td><td>{{money .PriceAtOrder}}</td><td>{{money .Amount}}</td></tr>
{{end}}</table>
<p>Subtotal: {{money .Order.Subtotal}}<br>
Discount: {{money .Order.Discount}}<br>
<strong>Total: {{money .Order.Total}}</strong></p>
<p>Shipping to: {{.Order.ShippingAddress}}<br>Payment: {{.Order.PaymentMethod}}</p>
`))

// ConfirmationMessage renders the customer order confirmation.
func ConfirmationMessage(o *Order, u User) (Message, error) {
	data := struct {
		Order *Order
		User  User
	}{o, u}
	var text, html bytes.Buffer
	if err := confirmationText.Execute(&text, data); err != nil {
		return Message{}, err
	}
	if err := confirmationHTML.Execute(&html, data); err != nil {
		return Message{}, err
	}
	return Message{
		Template: TemplateOrderConfirmation,
		OrderID:  o.ID,
		To:       []string{u.Email},
		Subject:  "Order Confirmation",
		Body:     text.String(),
		HTML:     html.String(),
	}, nil
}

// AlertMessage renders the operator new-order alert.
func AlertMessage(o *Order, operators []string) Message {
	return Message{
		Template: TemplateNewOrderAlert,
		OrderID:  o.ID,
		To:       operators,
		Subject:  "New Order",
		Body:     fmt.Sprintf("A new order has been placed. Order ID: %s", o.ID),
	}
}

func (e *Engine) notify(o *Order, u User) {
	if e.Dispatcher == nil {
		return
	}
	var msgs []Message
	if u.Email != "" {
		m, err := ConfirmationMessage(o, u)
		if err != nil {
			e.log().Error("render confirmation", "order_id", o.ID, "error", err)
		} else {
			msgs = append(msgs, m)
		}
	}
	if len(e.Operators) > 0 {
		msgs = append(msgs, AlertMessage(o, e.Operators))
	}
	if len(msgs) == 0 {
		return
	}

	timeout := e.NotifyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		for _, m := range msgs {
			if err := e.Dispatcher.Dispatch(ctx, m); err != nil {
				nf := &Error{Kind: KindNotification, Message: "notification not delivered", Err: err}
				e.log().Error(nf.Message,
					"order_id", o.ID,
					"template", m.Template,
					"kind", nf.Kind,
					"error", err,
				)
			}
		}
	}()
}
