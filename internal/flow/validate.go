package flow

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	otpPattern   = regexp.MustCompile(`^\d{6}$`)
	// quantityPattern 只接受十进制写法，排除 ParseFloat 额外支持的十六进制浮点与下划线分隔。
	quantityPattern = regexp.MustCompile(`^\+?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
)

// DefaultNetworks 是允许转账的网络。
var DefaultNetworks = []string{"POLYGON", "ETHEREUM", "BSC"}

// nativeTokenKeyword 代表原生代币，聊天客户端无法发送空消息时使用。
const nativeTokenKeyword = "NATIVE"

// ValidEmail 判断输入是否符合基本的邮箱格式。
func ValidEmail(input string) bool {
	return emailPattern.MatchString(input)
}

// ValidOTP 判断输入是否为 6 位数字。
func ValidOTP(input string) bool {
	return otpPattern.MatchString(input)
}

// NormalizeNetwork 忽略大小写匹配允许的网络，返回大写形式。
func NormalizeNetwork(input string, allowed []string) (string, bool) {
	upper := strings.ToUpper(strings.TrimSpace(input))
	for _, name := range allowed {
		if upper == strings.ToUpper(name) {
			return upper, true
		}
	}
	return "", false
}

// NormalizeTokenAddress 将空输入或 NATIVE 关键字转换为空字符串，表示原生代币。
func NormalizeTokenAddress(input string) string {
	trimmed := strings.TrimSpace(input)
	if strings.EqualFold(trimmed, nativeTokenKeyword) {
		return ""
	}
	return trimmed
}

// ValidQuantity 判断数量是否为大于 0 的有限十进制数字。
func ValidQuantity(input string) bool {
	if !quantityPattern.MatchString(input) {
		return false
	}
	value, err := strconv.ParseFloat(input, 64)
	if err != nil || math.IsInf(value, 0) || math.IsNaN(value) {
		return false
	}
	return value > 0
}

// ValidRecipient 要求 0x 前缀加 40 位十六进制字符。
func ValidRecipient(input string) bool {
	return len(input) == 42 && strings.HasPrefix(input, "0x") && common.IsHexAddress(input)
}
