package messaging

import "strings"

// LocalizePhone converts an E.164 or whatsapp-prefixed Pakistani number into
// the local 03XX form the intake flow stores ("whatsapp:+923001234567" ->
// "03001234567"). Values already in local form pass through.
func LocalizePhone(value string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "whatsapp:")
	digits := sanitizePhone(value)
	if strings.HasPrefix(digits, "92") && len(digits) == 12 {
		return "0" + digits[2:]
	}
	return digits
}

// WhatsAppAddress converts a local 03XX number into the provider address
// ("whatsapp:+923001234567"). Numbers already carrying the prefix pass
// through.
func WhatsAppAddress(value string) string {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "whatsapp:") {
		return value
	}
	digits := sanitizePhone(value)
	if strings.HasPrefix(digits, "0") && len(digits) == 11 {
		digits = "92" + digits[1:]
	}
	return "whatsapp:+" + digits
}

func sanitizePhone(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
