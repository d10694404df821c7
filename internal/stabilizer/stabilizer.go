package stabilizer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"qecbench/pkg/contract"
)

// 码族标识。
const (
	FamilyThreeQubit = "three_qubit"
	FamilyRepetition = "repetition"
)

// familyAliases: 兼容别名 → 规范名。
var familyAliases = map[string]string{
	FamilyThreeQubit: FamilyThreeQubit,
	"bit_flip_3":     FamilyThreeQubit,
	FamilyRepetition: FamilyRepetition,
}

// Spec: 码描述的原始数据形态（YAML 文件/代码内字面量）。
// SyndromeTable 可选：值为 "no_error" 或数据比特下标；若提供，必须与推导结果完全一致。
type Spec struct {
	Name          string            `yaml:"name"`
	NData         int               `yaml:"n_data"`
	NLogical      int               `yaml:"n_logical"`
	Stabilizers   []string          `yaml:"stabilizers"`
	SyndromeTable map[string]string `yaml:"syndrome_table,omitempty"`
}

// New 校验 Spec 并构造只读 StabilizerCode。
// 仅支持单逻辑比特、Z 型偶权重校验子（比特翻转码）；综合征表由校验子支撑推导。
func New(s Spec) (contract.StabilizerCode, error) {
	if s.NData < 1 {
		return contract.StabilizerCode{}, contract.Configf("n_data", "must be >= 1, got %d", s.NData)
	}
	if s.NLogical != 1 {
		return contract.StabilizerCode{}, contract.Configf("n_logical", "unsupported logical qubit count %d (only 1)", s.NLogical)
	}
	if len(s.Stabilizers) == 0 {
		return contract.StabilizerCode{}, contract.Configf("stabilizers", "empty")
	}
	stabs := make([]contract.PauliString, 0, len(s.Stabilizers))
	for i, raw := range s.Stabilizers {
		p, err := ParsePauli(raw, s.NData)
		if err != nil {
			return contract.StabilizerCode{}, contract.Configf(fmt.Sprintf("stabilizers[%d]", i), "%v", err)
		}
		if err := checkBitFlipCheck(p); err != nil {
			return contract.StabilizerCode{}, contract.Configf(fmt.Sprintf("stabilizers[%d]", i), "%v", err)
		}
		stabs = append(stabs, p)
	}
	table, err := DeriveTable(stabs, s.NData)
	if err != nil {
		return contract.StabilizerCode{}, err
	}
	if len(s.SyndromeTable) > 0 {
		if err := compareTable(table, s.SyndromeTable); err != nil {
			return contract.StabilizerCode{}, err
		}
	}
	name := strings.TrimSpace(s.Name)
	if name == "" {
		name = fmt.Sprintf("%d-qubit code", s.NData)
	}
	return contract.StabilizerCode{
		Name:          name,
		NData:         s.NData,
		NLogical:      s.NLogical,
		Stabilizers:   stabs,
		SyndromeTable: table,
	}, nil
}

// ThreeQubit 返回 3 比特重复码：Z0Z1、Z1Z2。
func ThreeQubit() contract.StabilizerCode {
	c, err := New(Spec{
		Name:        "3-Qubit Code",
		NData:       3,
		NLogical:    1,
		Stabilizers: []string{"ZZI", "IZZ"},
		SyndromeTable: map[string]string{
			"00": "no_error",
			"01": "0",
			"11": "1",
			"10": "2",
		},
	})
	if err != nil {
		panic(err) // 静态定义，不可能失败
	}
	return c
}

// Repetition 返回距离为 d 的比特翻转重复码（相邻 Z_iZ_{i+1} 校验）。
func Repetition(d int) (contract.StabilizerCode, error) {
	if d < 3 {
		return contract.StabilizerCode{}, contract.Configf("distance", "repetition code needs distance >= 3, got %d", d)
	}
	stabs := make([]string, 0, d-1)
	for i := 0; i < d-1; i++ {
		stabs = append(stabs, fmt.Sprintf("Z%dZ%d", i, i+1))
	}
	return New(Spec{Name: fmt.Sprintf("%d-Qubit Repetition Code", d), NData: d, NLogical: 1, Stabilizers: stabs})
}

// ForFamily 按码族标识构造码；distance 为 0 时使用码族默认值。
func ForFamily(family string, distance int) (contract.StabilizerCode, error) {
	canon, ok := familyAliases[strings.ToLower(strings.TrimSpace(family))]
	if !ok {
		return contract.StabilizerCode{}, contract.Configf("code.family", "unknown code family %q", family)
	}
	switch canon {
	case FamilyThreeQubit:
		if distance != 0 && distance != 3 {
			return contract.StabilizerCode{}, contract.Configf("code.distance", "%s has fixed distance 3, got %d", canon, distance)
		}
		return ThreeQubit(), nil
	default:
		if distance == 0 {
			distance = 3
		}
		return Repetition(distance)
	}
}

// Families 返回已知码族（含别名），按字典序。
func Families() []string {
	out := make([]string, 0, len(familyAliases))
	for k := range familyAliases {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ParsePauli 解析 Pauli 串：支持稠密写法 "ZZI"（长度必须为 n）与稀疏写法 "Z0Z1"。
func ParsePauli(s string, n int) (contract.PauliString, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("empty pauli string")
	}
	dense := true
	for _, r := range s {
		if r >= '0' && r <= '9' {
			dense = false
			break
		}
	}
	if dense {
		if len(s) != n {
			return "", fmt.Errorf("pauli %q has length %d, want %d", s, len(s), n)
		}
		for _, r := range s {
			if !isPauli(r) {
				return "", fmt.Errorf("pauli %q: invalid operator %q", s, r)
			}
		}
		return contract.PauliString(s), nil
	}
	ops := []byte(strings.Repeat("I", n))
	i := 0
	for i < len(s) {
		op := rune(s[i])
		if !isPauli(op) || op == 'I' {
			return "", fmt.Errorf("pauli %q: expected operator at offset %d", s, i)
		}
		j := i + 1
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if j == i+1 {
			return "", fmt.Errorf("pauli %q: missing qubit index after %c", s, op)
		}
		q, err := strconv.Atoi(s[i+1 : j])
		if err != nil {
			return "", fmt.Errorf("pauli %q: %w", s, err)
		}
		if q < 0 || q >= n {
			return "", fmt.Errorf("pauli %q: qubit %d out of range [0,%d)", s, q, n)
		}
		if ops[q] != 'I' {
			return "", fmt.Errorf("pauli %q: qubit %d repeated", s, q)
		}
		ops[q] = byte(op)
		i = j
	}
	return contract.PauliString(ops), nil
}

func isPauli(r rune) bool { return r == 'I' || r == 'X' || r == 'Y' || r == 'Z' }

// checkBitFlipCheck: 仅接受 I/Z 组成、偶权重、非恒等的校验子（|0…0⟩ 与 |1…1⟩ 同为 +1 本征态）。
func checkBitFlipCheck(p contract.PauliString) error {
	w := 0
	for _, r := range p {
		switch r {
		case 'I':
		case 'Z':
			w++
		default:
			return fmt.Errorf("only Z-type parity checks are supported, got %q", string(p))
		}
	}
	if w == 0 {
		return fmt.Errorf("identity is not a parity check")
	}
	if w%2 != 0 {
		return fmt.Errorf("parity check %s has odd weight %d", p.Label(), w)
	}
	return nil
}

// Syndrome 计算一组数据比特翻转对应的综合征串。
// flipped[i] 为真表示数据比特 i 被翻转；第 j 个校验子在其支撑内翻转数为奇数时触发。
// 输出为寄存器显示序：第 k 个字符对应第 m-1-k 个校验子。
func Syndrome(stabs []contract.PauliString, flipped []bool) string {
	m := len(stabs)
	out := make([]byte, m)
	for j, p := range stabs {
		parity := 0
		for i := 0; i < len(p) && i < len(flipped); i++ {
			if flipped[i] && p[i] == 'Z' {
				parity ^= 1
			}
		}
		out[m-1-j] = byte('0' + parity)
	}
	return string(out)
}

// SingleErrorSyndrome 返回数据比特 q 单独翻转时的综合征。
func SingleErrorSyndrome(stabs []contract.PauliString, n, q int) string {
	flipped := make([]bool, n)
	flipped[q] = true
	return Syndrome(stabs, flipped)
}

// DeriveTable 推导综合征表：全零 → NoError；比特 i 翻转 → 其触发的校验子集合。
// 任一比特不可检测（综合征全零）或两比特综合征相同，则该码无法纠正单比特错误。
func DeriveTable(stabs []contract.PauliString, n int) (map[string]contract.Correction, error) {
	zero := strings.Repeat("0", len(stabs))
	table := map[string]contract.Correction{zero: contract.NoError}
	for q := 0; q < n; q++ {
		syn := SingleErrorSyndrome(stabs, n, q)
		if prev, dup := table[syn]; dup {
			if prev.IsNoError() {
				return nil, contract.Configf("stabilizers", "bit flip on qubit %d is undetectable", q)
			}
			return nil, contract.Configf("stabilizers", "qubits %d and %d share syndrome %s", int(prev), q, syn)
		}
		table[syn] = contract.Correction(q)
	}
	return table, nil
}

func compareTable(derived map[string]contract.Correction, given map[string]string) error {
	if len(given) != len(derived) {
		return contract.Configf("syndrome_table", "has %d entries, derived table has %d", len(given), len(derived))
	}
	for syn, raw := range given {
		want, ok := derived[syn]
		if !ok {
			return contract.Configf("syndrome_table", "syndrome %q is not produced by any single bit flip", syn)
		}
		got, err := parseCorrection(raw)
		if err != nil {
			return contract.Configf("syndrome_table", "syndrome %q: %v", syn, err)
		}
		if got != want {
			return contract.Configf("syndrome_table", "syndrome %q maps to %s, derivation gives %s", syn, got, want)
		}
	}
	return nil
}

func parseCorrection(s string) (contract.Correction, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "no_error" || s == "none" || s == "-1" {
		return contract.NoError, nil
	}
	q, err := strconv.Atoi(s)
	if err != nil || q < 0 {
		return 0, fmt.Errorf("invalid correction %q", s)
	}
	return contract.Correction(q), nil
}

// Codeword 返回逻辑值 v 的编码数据比特串（比特翻转码：重复 v）。
func Codeword(c contract.StabilizerCode, v contract.Logical) string {
	if v == contract.Logical1 {
		return strings.Repeat("1", c.NData)
	}
	return strings.Repeat("0", c.NData)
}
