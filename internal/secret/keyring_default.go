//go:build !windows

package secret

import "strings"

// 通过 secret-tool / security 写入的值常带结尾换行，passphrase 不应包含它。
func cleanSecret(v string) string {
	return strings.TrimRight(v, "\r\n")
}
