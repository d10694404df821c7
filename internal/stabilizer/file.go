package stabilizer

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"qecbench/pkg/contract"
)

// LoadFile 从 YAML 文件读取码描述（严格拒绝未知字段）并构造 StabilizerCode。
//
//	name: 5-Qubit Repetition
//	n_data: 5
//	n_logical: 1
//	stabilizers: [Z0Z1, Z1Z2, Z2Z3, Z3Z4]
//	syndrome_table:        # 可选；需与推导一致
//	  "0000": no_error
func LoadFile(path string) (contract.StabilizerCode, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return contract.StabilizerCode{}, err
	}
	return Parse(b)
}

// Parse 解析 YAML 码描述。
func Parse(b []byte) (contract.StabilizerCode, error) {
	var s Spec
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return contract.StabilizerCode{}, contract.Configf("code.file", "%v", err)
	}
	return New(s)
}

// Entry: 综合征表的一行（用于展示）。
type Entry struct {
	Syndrome   string `json:"syndrome" yaml:"syndrome"`
	Correction string `json:"correction" yaml:"correction"`
}

// Info: 码描述的可读视图。
type Info struct {
	Name        string   `json:"name" yaml:"name"`
	NData       int      `json:"n_data" yaml:"n_data"`
	NLogical    int      `json:"n_logical" yaml:"n_logical"`
	Stabilizers []string `json:"stabilizers" yaml:"stabilizers"`
	Table       []Entry  `json:"syndrome_table" yaml:"syndrome_table"`
}

// Describe 生成 Info；表项按纠正目标排序（NoError 在前，随后按比特下标升序）。
func Describe(c contract.StabilizerCode) Info {
	info := Info{Name: c.Name, NData: c.NData, NLogical: c.NLogical}
	for _, p := range c.Stabilizers {
		info.Stabilizers = append(info.Stabilizers, p.Label())
	}
	syns := make([]string, 0, len(c.SyndromeTable))
	for s := range c.SyndromeTable {
		syns = append(syns, s)
	}
	sort.Slice(syns, func(i, j int) bool {
		return c.SyndromeTable[syns[i]] < c.SyndromeTable[syns[j]]
	})
	for _, s := range syns {
		info.Table = append(info.Table, Entry{Syndrome: s, Correction: c.SyndromeTable[s].String()})
	}
	return info
}

// YAML 将 Info 序列化为 YAML（codes 子命令输出）。
func (i Info) YAML() (string, error) {
	b, err := yaml.Marshal(i)
	if err != nil {
		return "", fmt.Errorf("stabilizer: marshal info: %w", err)
	}
	return string(b), nil
}
