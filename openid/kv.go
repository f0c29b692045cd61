package openid

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

// parseKeyValue decodes an OpenID key-value form document: one "key:value"
// pair per newline terminated line.
func parseKeyValue(b []byte) (map[string]string, error) {
	const op = "openid.parseKeyValue"
	kv := map[string]string{}
	for i, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok || k == "" {
			return nil, fmt.Errorf("%s: line %d has no key: %w", op, i+1, ErrMalformedKeyValue)
		}
		kv[k] = v
	}
	return kv, nil
}

// encodeKeyValue encodes the given keys (in order) of kv as a key-value form
// document.  Keys missing from kv are encoded with an empty value.
func encodeKeyValue(kv map[string]string, keys ...string) ([]byte, error) {
	const op = "openid.encodeKeyValue"
	if len(keys) == 0 {
		for k := range kv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}
	var buf bytes.Buffer
	for _, k := range keys {
		v := kv[k]
		if k == "" || strings.ContainsAny(k, ":\n") || strings.Contains(v, "\n") {
			return nil, fmt.Errorf("%s: %q cannot be encoded: %w", op, k, ErrMalformedKeyValue)
		}
		buf.WriteString(k)
		buf.WriteByte(':')
		buf.WriteString(v)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
