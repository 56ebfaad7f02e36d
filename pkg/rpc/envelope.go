package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/conduit/pkg/ports"
)

var (
	// SignOn is sent by a client on the shared request channel before its first call.
	SignOn = []byte("__CONDUIT_CLIENT_SIGNON__")

	// SignOff is sent by a client once it will make no more calls.
	SignOff = []byte("__CONDUIT_CLIENT_SIGNOFF__")
)

// ResponsePrefix starts every ephemeral response address.
const ResponsePrefix = ports.ResponsePrefix

// ErrBadEnvelope is returned when a call on the shared channel cannot be decoded.
var ErrBadEnvelope = errors.New("malformed request envelope")

// Envelope carries a call with the routing metadata needed to answer it.
type Envelope struct {
	RequestID       string `json:"request_id"`
	ResponseAddress string `json:"response_address"`
	Payload         []byte `json:"payload"`
}

// Encode serializes the envelope.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an envelope received on the shared request channel.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if env.ResponseAddress == "" {
		return Envelope{}, fmt.Errorf("%w: missing response address", ErrBadEnvelope)
	}
	return env, nil
}

// IsControl reports whether msg is a sign-on or sign-off sentinel.
func IsControl(msg []byte) bool {
	return bytes.Equal(msg, SignOn) || bytes.Equal(msg, SignOff)
}
