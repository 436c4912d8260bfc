package idgen

import "strconv"

// Generator ID 生成器
type Generator interface {
	NextID() (int64, error)
}

// NextString 以十进制字符串形式返回下一个 ID，告警 ID 对外是不透明字符串
func NextString(g Generator) (string, error) {
	id, err := g.NextID()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}
