package plugin

import (
	"dumpgw/internal/form"
	"dumpgw/internal/storedresponse"
)

// FormData builds form.Parser. Parameter max-field-size overrides the
// per-field limit.
type FormData struct {
	MaxFieldSize int64
}

func (FormData) Name() string { return "form-data" }

func (FormData) Parameters() map[string]string {
	return map[string]string{"max-field-size": "int"}
}

func (b FormData) Build(params map[string]string) (Middleware, error) {
	max, err := Int(params, "max-field-size", int(b.MaxFieldSize))
	if err != nil {
		return nil, err
	}
	return form.Parser(form.Options{MaxFieldSize: int64(max)}), nil
}

// StoredResponse builds storedresponse.Handler. Parameter max-bytes caps the
// retained body.
type StoredResponse struct {
	MaxBytes int64
}

func (StoredResponse) Name() string { return "stored-response" }

func (StoredResponse) Parameters() map[string]string {
	return map[string]string{"max-bytes": "int"}
}

func (b StoredResponse) Build(params map[string]string) (Middleware, error) {
	max, err := Int(params, "max-bytes", int(b.MaxBytes))
	if err != nil {
		return nil, err
	}
	return storedresponse.Handler(int64(max)), nil
}
