package rule

import _ "embed"

//go:embed default_rules.yaml
var defaultRules []byte

// DefaultRules 内置规则表原文，部署时可用 rules.yaml 覆盖
func DefaultRules() []byte {
	return defaultRules
}

// DefaultTable 解析内置规则表，内置表非法属于编程错误
func DefaultTable() *Table {
	t, err := Parse(defaultRules)
	if err != nil {
		panic(err)
	}
	return t
}
