package allowlist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/FelipeGerardi/projetos-desenvolvimento/internal/config"
)

// LoadFile reads allow rules from a YAML file, or from every *.yml / *.yaml
// file below a directory in lexical order. Each file holds a YAML sequence of
// rules:
//
//	- name: lan
//	  cidr: 192.168.2.0/24
//	- host: comercial.techto.com.br
//	  schemes: [https]
//	  ports: "443"
func LoadFile(path string) ([]config.AllowRule, error) {
	var (
		rules []config.AllowRule
		errs  []error
	)

	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(p) {
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("read rules file %s: %w", p, err))
			return nil
		}
		var fileRules []config.AllowRule
		if err := yaml.Unmarshal(data, &fileRules); err != nil {
			errs = append(errs, fmt.Errorf("parse rules file %s: %w", p, err))
			return nil
		}
		rules = append(rules, fileRules...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load rules from %s: %w", path, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rules, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yml" || ext == ".yaml"
}
