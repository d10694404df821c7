package rate

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
)

// DeriveKey 从 backend 标识与其原样 Options JSON 构造限流分组键。
// 共享同一设备（"device"）的配置共享额度；未声明设备时按 backend 名称分组。
// 设备名可能携带账户信息，仅以 sha256 前缀出现在键中。
func DeriveKey(backend string, raw json.RawMessage) LimitKey {
	var obj map[string]any
	_ = json.Unmarshal(raw, &obj)
	dev := ""
	if v, ok := obj["device"].(string); ok {
		dev = strings.TrimSpace(v)
	}
	if dev == "" {
		return LimitKey(backend)
	}
	sum := sha256.Sum256([]byte(dev))
	return LimitKey(fmt.Sprintf("%s:%x", backend, sum[:8]))
}
