// Package view 包含由文档库数据推导出的只读视图：文件大小格式化、集合状态、活动时间线和文档树。
// 这些函数都是纯函数，每次请求都重新计算。
package view

import (
	"math"
	"strconv"
)

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// FormatFileSize 把字节数转换为 {B, KB, MB, GB} 中最大的合适单位（以 1024 为进制），
// 保留两位小数并去掉末尾的 0。0 字节固定输出 "0 B"。
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	value := float64(bytes)
	i := 0
	for value >= 1024 && i < len(sizeUnits)-1 {
		value /= 1024
		i++
	}
	rounded := math.Round(value*100) / 100
	return strconv.FormatFloat(rounded, 'f', -1, 64) + " " + sizeUnits[i]
}
