package evalserver

import (
	"fmt"

	"github.com/nova-lang/nova/pkg/stream"
)

const (
	Success     = 0
	ErrJSON     = -41201
	ErrData     = -41205
	ErrEval     = -41210
	ErrTooLarge = -41213
)

type resultInfo struct {
	ErrorCode int         `json:"code"`
	ErrorMsg  string      `json:"message"`
	Result    interface{} `json:"result,omitempty"`
}

type evalResult struct {
	ID       string          `json:"id"`
	Results  []stream.Record `json:"results"`
	Failures int             `json:"failures"`
}

type statsResult struct {
	Requests   uint64 `json:"requests"`
	Rejected   uint64 `json:"rejected"`
	Statements uint64 `json:"statements"`
	Failures   uint64 `json:"failures"`
}

func getString(mp map[string]interface{}, k string) (string, error) {
	v, ok := mp[k]
	if !ok {
		return "", fmt.Errorf("'%s' not exist", k)
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("'%s' not string", k)
}
