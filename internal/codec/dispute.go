package codec

import (
	"jobevents/internal/model"
	"jobevents/internal/sessionkey"
)

// DecryptDisputed opens the dispute content with the conversation key. Any failure,
// including a missing key, leaves the placeholder in Content; it never fails.
func DecryptDisputed(d model.DisputedDetails, key []byte) model.DisputedDetails {
	out := d
	out.Content = model.EncryptedPlaceholder
	if len(key) == 0 || len(d.EncryptedContent) == 0 {
		return out
	}
	plaintext, err := sessionkey.OpenString(key, d.EncryptedContent)
	if err != nil {
		return out
	}
	out.Content = plaintext
	return out
}
