package decoder

import "qecbench/pkg/contract"

// Decoder: 综合征查表译码器（纯函数，只读，可并发使用）。
// 表外综合征（仅在多比特错误下出现）降级为 NoError 并以 miss=true 标记，不报错。
type Decoder struct {
	table map[string]contract.Correction
}

// New 从码描述复制一份查表。
func New(code contract.StabilizerCode) *Decoder {
	t := make(map[string]contract.Correction, len(code.SyndromeTable))
	for k, v := range code.SyndromeTable {
		t[k] = v
	}
	return &Decoder{table: t}
}

// Decode 返回纠正动作；miss 表示综合征不在表中。
func (d *Decoder) Decode(syndrome string) (c contract.Correction, miss bool) {
	c, ok := d.table[syndrome]
	if !ok {
		return contract.NoError, true
	}
	return c, false
}

// Apply 对数据比特串施加纠正（翻转对应比特）；NoError 或越界时原样返回。
func Apply(data string, c contract.Correction) string {
	q := int(c)
	if c.IsNoError() || q >= len(data) {
		return data
	}
	b := []byte(data)
	switch b[q] {
	case '0':
		b[q] = '1'
	case '1':
		b[q] = '0'
	}
	return string(b)
}
