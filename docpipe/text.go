package docpipe

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// extractPlain decodes bytes as text. The decode chain is UTF-8, then
// Latin-1, then UTF-8 with replacement runes; it cannot fail.
func extractPlain(data []byte) (string, []string, error) {
	text, warnings := decodeText(data)
	return text, warnings, nil
}

// decodeText applies the fallback decode chain.
func decodeText(data []byte) (string, []string) {
	if utf8.Valid(data) {
		return string(data), nil
	}

	if decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data); err == nil {
		return string(decoded), []string{"decoded as latin-1 (not valid utf-8)"}
	}

	// Last resort: replace every invalid sequence.
	return strings.ToValidUTF8(string(data), string(utf8.RuneError)),
		[]string{"decoded with replacement characters"}
}

// extractCSV renders each row on its own line with fields joined by " | ",
// preserving row order.
func extractCSV(data []byte) (string, []string, error) {
	text, warnings := decodeText(data)

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1 // ragged rows are fine

	var sb strings.Builder
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", warnings, fmt.Errorf("parse csv: %w", err)
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strings.Join(row, " | "))
	}
	return sb.String(), warnings, nil
}

// extractJSON flattens every leaf scalar to one value per line, depth-first,
// preserving key and array traversal order. Containers are descended into,
// never emitted.
func extractJSON(data []byte) (string, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var lines []string
	if err := flattenJSON(dec, &lines); err != nil {
		return "", nil, fmt.Errorf("parse json: %w", err)
	}
	return strings.Join(lines, "\n"), nil, nil
}

// flattenJSON walks the token stream. Using the decoder directly (instead of
// unmarshalling into map[string]any) keeps object keys in document order.
func flattenJSON(dec *json.Decoder, lines *[]string) error {
	inKey := false // inside an object, alternating key/value tokens
	var stack []byte

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{':
				stack = append(stack, '{')
			case '[':
				stack = append(stack, '[')
			case '}', ']':
				stack = stack[:len(stack)-1]
			}
		case string:
			if top(stack) == '{' && !inKey {
				// Object key: skip, value token follows.
				inKey = true
				continue
			}
			*lines = append(*lines, t)
		case json.Number:
			*lines = append(*lines, t.String())
		case bool:
			if t {
				*lines = append(*lines, "true")
			} else {
				*lines = append(*lines, "false")
			}
		case nil:
			*lines = append(*lines, "null")
		}
		inKey = false
	}
}

func top(stack []byte) byte {
	if len(stack) == 0 {
		return 0
	}
	return stack[len(stack)-1]
}
