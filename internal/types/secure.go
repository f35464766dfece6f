package types

// redactedPlaceholder replaces secret values wherever they would be printed
// or serialized.
const redactedPlaceholder = "***REDACTED***"

// redactedJSON is the pre-computed JSON encoding of redactedPlaceholder.
var redactedJSON = []byte(`"` + redactedPlaceholder + `"`)

// SecretString is a string type that prevents accidental logging or
// serialization of sensitive values. String, GoString and MarshalJSON all
// return a redacted placeholder, so a secret stays hidden when a Config is
// passed to slog, printed with %v or %#v, or dumped as JSON.
//
// Use Unmask to retrieve the plaintext when it is genuinely needed: building
// the pgx connection string, setting the weatherapi.com key query parameter,
// or handing the broker password to the MQTT client options.
type SecretString string

// String returns a redacted placeholder instead of the raw value. It is
// invoked by fmt.Sprintf, fmt.Println and anything else that honours
// fmt.Stringer, including slog's text and JSON handlers.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// GoString covers the %#v verb.
func (s SecretString) GoString() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string. Config
// dumps, API responses and structured log entries never carry the value.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value of the secret.
// Keep call sites few and easy to grep for; each one is a place where the
// value leaves the process boundary (a DSN, an upstream request, a broker
// CONNECT packet).
func (s SecretString) Unmask() string {
	return string(s)
}

// IsSet reports whether the secret holds a non-empty value.
func (s SecretString) IsSet() bool {
	return s != ""
}
