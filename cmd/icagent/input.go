package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/colorfulnotion/icagent/candid"
	"github.com/colorfulnotion/icagent/common"
	"github.com/colorfulnotion/icagent/leb128"
	"github.com/colorfulnotion/icagent/principal"
)

// readBytesArg reads "@path" as a raw file and anything else as hex.
func readBytesArg(arg string) ([]byte, error) {
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		return os.ReadFile(path)
	}
	data, err := common.DecodeHex(strings.TrimSpace(arg))
	if err != nil {
		return nil, fmt.Errorf("argument is neither @file nor hex: %w", err)
	}
	return data, nil
}

var principalFields = map[string]bool{"canister_id": true, "sender": true}

func readRequestJSON(stdin io.Reader, arg string) (map[string]any, error) {
	var data []byte
	var err error
	if arg == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("request json: %w", err)
	}
	return convertFields(raw)
}

func convertFields(raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok && principalFields[k] {
			p, err := principal.FromText(s)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = p
			continue
		}
		c, err := convertJSON(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = c
	}
	return out, nil
}

func convertJSON(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.HasPrefix(x, "0x") {
			return common.DecodeHex(x)
		}
		return x, nil
	case json.Number:
		n, ok := new(big.Int).SetString(x.String(), 10)
		if !ok || n.Sign() < 0 {
			return nil, fmt.Errorf("%s is not an unsigned integer", x)
		}
		return n, nil
	case []any:
		items := make([]any, len(x))
		for i, item := range x {
			c, err := convertJSON(item)
			if err != nil {
				return nil, err
			}
			items[i] = c
		}
		return items, nil
	case map[string]any:
		return convertFields(x)
	}
	return nil, fmt.Errorf("unsupported json value %v (%T)", v, v)
}

func parsePrincipalArg(arg string, derKey bool) (principal.Principal, error) {
	if derKey {
		der, err := common.DecodeHex(arg)
		if err != nil {
			return principal.Principal{}, err
		}
		return principal.SelfAuthenticating(der), nil
	}
	if p, err := principal.FromText(arg); err == nil {
		return p, nil
	}
	p, err := principal.FromHex(arg)
	if err != nil {
		return principal.Principal{}, fmt.Errorf("%q is neither a principal nor hex", arg)
	}
	return p, nil
}

func parsePath(labels []string) ([][]byte, error) {
	path := make([][]byte, len(labels))
	for i, l := range labels {
		switch {
		case strings.HasPrefix(l, "0x"):
			b, err := common.DecodeHex(l)
			if err != nil {
				return nil, fmt.Errorf("label %q: %w", l, err)
			}
			path[i] = b
		case strings.HasPrefix(l, "principal:"):
			p, err := principal.FromText(strings.TrimPrefix(l, "principal:"))
			if err != nil {
				return nil, fmt.Errorf("label %q: %w", l, err)
			}
			path[i] = p.Raw
		default:
			path[i] = []byte(l)
		}
	}
	return path, nil
}

// displayValue prints Candid replies decoded, text as text and anything else
// as hex.
func displayValue(b []byte) string {
	if bytes.HasPrefix(b, candid.Magic) {
		if _, values, err := candid.DecodeUntyped(b); err == nil {
			return candid.FormatArgs(values)
		}
	}
	if utf8.Valid(b) && !bytes.ContainsFunc(b, func(r rune) bool { return r < 0x20 }) {
		return string(b)
	}
	return common.Bytes2Hex(b)
}

func decodeTime(raw []byte) (time.Time, error) {
	ns, err := leb128.Decode(raw)
	if err != nil {
		return time.Time{}, err
	}
	if !ns.IsInt64() {
		return time.Time{}, fmt.Errorf("time %s out of range", ns)
	}
	return time.Unix(0, ns.Int64()), nil
}
