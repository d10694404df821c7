package classify

import "qecbench/pkg/contract"

// Classify 对末态数据比特做多数表决。
// - 长度不等于 n 或含非 0/1 字符：Indeterminate；
// - 0 多于 1：Logical0；1 多于 0：Logical1；
// - 平票（仅 n 为偶数时可能）：Indeterminate。
func Classify(bits string, n int) contract.Logical {
	if n < 1 || len(bits) != n {
		return contract.Indeterminate
	}
	ones := 0
	for i := 0; i < len(bits); i++ {
		switch bits[i] {
		case '0':
		case '1':
			ones++
		default:
			return contract.Indeterminate
		}
	}
	zeros := n - ones
	switch {
	case zeros > ones:
		return contract.Logical0
	case ones > zeros:
		return contract.Logical1
	default:
		return contract.Indeterminate
	}
}

// Classifier 绑定码的数据比特数。
type Classifier struct{ n int }

// New 构造绑定到 code 的分类器。
func New(code contract.StabilizerCode) Classifier { return Classifier{n: code.NData} }

// Classify 见包级 Classify。
func (c Classifier) Classify(bits string) contract.Logical { return Classify(bits, c.n) }
