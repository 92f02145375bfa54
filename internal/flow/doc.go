// Package flow 实现登录与转账两类多步对话流程。
//
// 每个用户至多一个流程，状态保存在 Store 中（内存或 Redis）。Machine 在处理
// 每条消息前检查超时，并通过 Locker 串行化同一用户的读改写操作。
package flow
