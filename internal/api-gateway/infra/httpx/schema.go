package httpx

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const schemaCreatePayment = `{
  "type": "object",
  "required": ["order_id", "payment_method"],
  "properties": {
    "order_id":       {"type": "string", "minLength": 1, "maxLength": 64},
    "payment_method": {"type": "string", "enum": ["cod", "card", "mobile_banking", "bank_transfer"]},
    "customer_email": {"type": "string", "format": "email", "maxLength": 254},
    "customer_name":  {"type": "string", "maxLength": 200},
    "customer_phone": {"type": "string", "maxLength": 32},
    "currency":       {"type": "string", "pattern": "^[A-Za-z]{3}$"}
  }
}`

const schemaUpdateStatus = `{
  "type": "object",
  "required": ["status"],
  "properties": {
    "status": {"type": "string", "minLength": 1, "maxLength": 32}
  }
}`

const schemaResolveEvent = `{
  "type": "object",
  "required": ["status"],
  "properties": {
    "status": {"type": "string", "enum": ["resolved", "dismissed"]}
  }
}`

var (
	createPaymentLoader = gojsonschema.NewStringLoader(schemaCreatePayment)
	updateStatusLoader  = gojsonschema.NewStringLoader(schemaUpdateStatus)
	resolveEventLoader  = gojsonschema.NewStringLoader(schemaResolveEvent)
)

// validateJSONSchema returns one error listing every violation.
func validateJSONSchema(schema gojsonschema.JSONLoader, body []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("malformed json: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
