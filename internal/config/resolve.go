package config

import (
	"github.com/zx06/sshpin/internal/errors"
)

// Resolve 合并 config/profile/format：CLI > ENV > Config。
func Resolve(opts Options) (Resolved, *errors.XError) {
	cfg, cfgPath, xe := LoadConfig(opts)
	if xe != nil {
		return Resolved{}, xe
	}

	// 选择 profile：--profile > SSHPIN_PROFILE > hosts.default > 空
	profile := ""
	if opts.CLIProfileSet {
		profile = opts.CLIProfile
	} else if opts.EnvProfile != "" {
		profile = opts.EnvProfile
	} else if _, ok := cfg.Hosts["default"]; ok {
		profile = "default"
	}

	var selected Host
	if profile != "" {
		h, ok := cfg.Hosts[profile]
		if !ok && (opts.CLIProfileSet || opts.EnvProfile != "") {
			return Resolved{}, errors.New(errors.CodeCfgInvalid, "profile not found",
				map[string]any{"profile": profile, "config_path": cfgPath})
		}
		selected = h
	}

	// 合并 format：--format > SSHPIN_FORMAT > host.format > auto
	format := "auto"
	if selected.Format != "" {
		format = selected.Format
	}
	if opts.EnvFormat != "" {
		format = opts.EnvFormat
	}
	if opts.CLIFormatSet {
		format = opts.CLIFormat
	}

	return Resolved{ConfigPath: cfgPath, ProfileName: profile, Format: format, Profile: selected, File: cfg}, nil
}
