package request

import "strings"

// MaskedValue replaces sensitive header values in log output. History keeps
// the real values; masking applies only at the logging boundary.
const MaskedValue = "[MASKED]"

// MaskHeaders returns a copy of headers with values of sensitive keys
// replaced by MaskedValue. Key comparison is case-insensitive.
func MaskHeaders(headers map[string]string, sensitive []string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	lookup := make(map[string]struct{}, len(sensitive))
	for _, k := range sensitive {
		lookup[strings.ToLower(k)] = struct{}{}
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if _, ok := lookup[strings.ToLower(k)]; ok {
			out[k] = MaskedValue
		} else {
			out[k] = v
		}
	}
	return out
}
