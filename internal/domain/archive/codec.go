package archive

import (
	"github.com/bytedance/sonic"
)

func encodeResults(results []ResultSummary) ([]byte, error) {
	if results == nil {
		results = []ResultSummary{}
	}
	return sonic.Marshal(results)
}

func decodeResults(raw []byte) ([]ResultSummary, error) {
	results := []ResultSummary{}
	if len(raw) == 0 {
		return results, nil
	}
	if err := sonic.Unmarshal(raw, &results); err != nil {
		return nil, err
	}
	return results, nil
}
