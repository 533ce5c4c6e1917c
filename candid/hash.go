package candid

import (
	"strconv"
	"strings"
)

// IdlHash folds the UTF-8 bytes of a label into the 32-bit field hash
// h = (h*223 + b) mod 2^32.
func IdlHash(label string) uint32 {
	var h uint32
	for i := 0; i < len(label); i++ {
		h = h*223 + uint32(label[i])
	}
	return h
}

// LabelID maps a label to its wire id. Labels of the form _N_ (decimal, or
// _0xN_ hex) stand for the literal id N.
func LabelID(label string) uint32 {
	if n, ok := numericLabel(label); ok {
		return n
	}
	return IdlHash(label)
}

func numericLabel(label string) (uint32, bool) {
	if len(label) < 3 || label[0] != '_' || label[len(label)-1] != '_' {
		return 0, false
	}
	body := label[1 : len(label)-1]
	base := 10
	if strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X") {
		body, base = body[2:], 16
	}
	if body == "" {
		return 0, false
	}
	for _, c := range body {
		if base == 10 && (c < '0' || c > '9') {
			return 0, false
		}
	}
	n, err := strconv.ParseUint(body, base, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// idLabel is the label used for fields only known by id.
func idLabel(id uint32) string {
	return "_" + strconv.FormatUint(uint64(id), 10) + "_"
}
