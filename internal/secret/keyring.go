package secret

import "github.com/zalando/go-keyring"

// ServiceName 是 keyring 中 sshpin 条目使用的 service。
const ServiceName = "sshpin"

// KeyringAPI 是对 OS keyring 的最小抽象，便于测试与跨平台。
type KeyringAPI interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
	Delete(service, account string) error
}

func defaultKeyring() KeyringAPI {
	return &osKeyring{}
}

// osKeyring 基于 zalando/go-keyring；读出的值经 cleanSecret 做平台相关清理。
type osKeyring struct{}

func (o *osKeyring) Get(service, account string) (string, error) {
	val, err := keyring.Get(service, account)
	if err != nil {
		return "", err
	}
	return cleanSecret(val), nil
}

func (o *osKeyring) Set(service, account, value string) error {
	return keyring.Set(service, account, value)
}

func (o *osKeyring) Delete(service, account string) error {
	return keyring.Delete(service, account)
}
