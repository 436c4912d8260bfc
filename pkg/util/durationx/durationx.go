// Package durationx 在 time.ParseDuration 基础上支持以天为单位的时长
package durationx

import (
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// Parse 解析 "7d" 这类天数时长，其余格式交给 time.ParseDuration
func Parse(s string) (time.Duration, error) {
	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(n)
		if err != nil {
			return 0, &time.ParseError{Layout: "<n>d", Value: s, Message: ": invalid day count"}
		}
		return time.Duration(days) * day, nil
	}
	return time.ParseDuration(s)
}
