// Package intent 把用户的自然语言请求解析为一次钱包 API 调用，并把调用结果总结为自然语言。
package intent
