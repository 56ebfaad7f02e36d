package ports

import (
	"strings"
	"unicode"
)

// EnvPrefix starts every variable injected into a model environment.
const EnvPrefix = "CONDUIT_"

// ResponsePrefix starts every ephemeral response address. Each one carries a
// single reply and is abandoned once its reader closes.
const ResponsePrefix = "response."

// EnvName builds a variable name from parts: EnvName("in", "raw-text") is
// CONDUIT_IN_RAW_TEXT. Anything but ASCII letters and digits becomes '_'.
func EnvName(parts ...string) string {
	var b strings.Builder
	b.WriteString(EnvPrefix)
	for i, part := range parts {
		if i > 0 {
			b.WriteByte('_')
		}
		for _, r := range part {
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				b.WriteRune(unicode.ToUpper(r))
			} else {
				b.WriteByte('_')
			}
		}
	}
	return b.String()
}

// TransportEnv names the variable carrying key for the transport called name,
// for example CONDUIT_TRANSPORT_SHARED_ADDR.
func TransportEnv(name, key string) string {
	return EnvName("transport", name, key)
}
