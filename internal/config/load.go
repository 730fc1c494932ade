package config

import (
	"bytes"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/zx06/sshpin/internal/errors"
)

const fileName = "sshpin.yaml"

func defaultConfigPaths(workDir, homeDir string) []string {
	paths := make([]string, 0, 2)
	if workDir != "" {
		paths = append(paths, filepath.Join(workDir, fileName))
	}
	if homeDir != "" {
		paths = append(paths, filepath.Join(homeDir, ".config", "sshpin", fileName))
	}
	return paths
}

// readFile 严格解码：未知字段报错，拼错的 host_keys 不会被静默忽略。
func readFile(path string) (File, *errors.XError) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return File{}, errors.New(errors.CodeCfgNotFound, "config file not found", map[string]any{"path": path})
		}
		return File{}, errors.Wrap(errors.CodeCfgInvalid, "failed to read config file", map[string]any{"path": path}, err)
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !stderrors.Is(err, io.EOF) {
		return File{}, errors.Wrap(errors.CodeCfgInvalid, "invalid config file", map[string]any{"path": path}, err)
	}
	if f.Hosts == nil {
		f.Hosts = map[string]Host{}
	}
	if xe := validate(f); xe != nil {
		xe.Details["path"] = path
		return File{}, xe
	}
	return f, nil
}

func validate(f File) *errors.XError {
	for name, h := range f.Hosts {
		if h.Port < 0 || h.Port > 65535 {
			return errors.New(errors.CodeCfgInvalid, "port out of range", map[string]any{"name": name, "port": h.Port})
		}
		if h.Timeout < 0 {
			return errors.New(errors.CodeCfgInvalid, "timeout must not be negative", map[string]any{"name": name})
		}
	}
	return nil
}

// LoadConfig 加载配置文件，返回完整配置和配置文件路径。
// 路径优先取 opts.ConfigPath，其次 SSHPIN_CONFIG；都为空时按默认位置查找，
// 默认位置都不存在时返回空配置。
func LoadConfig(opts Options) (File, string, *errors.XError) {
	workDir := opts.WorkDir
	if workDir == "" {
		wd, _ := os.Getwd()
		workDir = wd
	}
	if opts.HomeDir == "" {
		if hd, err := os.UserHomeDir(); err == nil {
			opts.HomeDir = hd
		}
	}

	if opts.ConfigPath == "" {
		opts.ConfigPath = os.Getenv("SSHPIN_CONFIG")
	}
	if opts.ConfigPath != "" {
		abs := opts.ConfigPath
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(workDir, abs)
		}
		f, xe := readFile(abs)
		if xe != nil {
			return File{}, "", xe
		}
		return f, abs, nil
	}

	for _, p := range defaultConfigPaths(workDir, opts.HomeDir) {
		f, xe := readFile(p)
		if xe != nil {
			if errors.HasCode(xe, errors.CodeCfgNotFound) {
				continue
			}
			return File{}, "", xe
		}
		return f, p, nil
	}

	return File{Hosts: map[string]Host{}}, "", nil
}
