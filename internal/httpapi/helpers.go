package httpapi

import (
	"encoding/base64"
	"fmt"
)

// decodeBase64Image accepts both raw base64 and a data URL
// ("data:image/png;base64,...") since that's the shape a browser
// FileReader or curl --data-urlencode most naturally produces.
func decodeBase64Image(raw string) ([]byte, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty image payload")
	}
	if idx := indexComma(raw); idx >= 0 && looksLikeDataURL(raw[:idx]) {
		raw = raw[idx+1:]
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 image data: %w", err)
		}
	}
	return decoded, nil
}

func indexComma(s string) int {
	for i, c := range s {
		if c == ',' {
			return i
		}
	}
	return -1
}

func looksLikeDataURL(prefix string) bool {
	return len(prefix) > 5 && prefix[:5] == "data:"
}
