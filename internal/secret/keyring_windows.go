//go:build windows

package secret

import "strings"

// cmdkey 写入的凭据是 UTF-16，按字节读回时字符间夹着 NUL。
func cleanSecret(v string) string {
	return strings.TrimRight(strings.ReplaceAll(v, "\x00", ""), "\r\n")
}
