package core

import "github.com/joshuafuller/beacon/internal/message"

// encodeOrNil wraps message.EncodeMessage so callers that only care about
// "did we get bytes" don't need to repeat the nil-message guard.
func encodeOrNil(msg *message.DNSMessage) ([]byte, error) {
	if msg == nil {
		return nil, nil
	}
	return message.EncodeMessage(msg)
}
