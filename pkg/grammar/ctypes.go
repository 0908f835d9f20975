package grammar

const (
	_DDG = 0x01 // decimal digit
	_SGN = 0x02 // sign or binary operator
	_END = 0x04 // end of statement
	_NLN = 0x08
)

var charList [256]int

func init() {
	for c := '0'; c <= '9'; c++ {
		charList[c] = _DDG
	}
	charList['+'] = _SGN
	charList['-'] = _SGN
	charList[';'] = _END
	charList[0] = _END
	charList['\n'] = _NLN
	charList['\r'] = _NLN
}

func IsDigit(c byte) bool {
	return charList[c]&_DDG != 0
}

func IsSign(c byte) bool {
	return charList[c]&_SGN != 0
}

// IsEnd reports whether c terminates a statement. The source adapter turns
// line ends into NUL, so both ';' and NUL qualify.
func IsEnd(c byte) bool {
	return charList[c]&_END != 0
}

func IsNewline(c byte) bool {
	return charList[c]&_NLN != 0
}
