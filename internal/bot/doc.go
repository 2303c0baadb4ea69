// Package bot 实现提及监听与自动回复：
//
//   - ResponseGenerator 通过两次模型调用把提及文本变成回复；
//   - ReplyPoster 截断到平台字数上限后以回复形式发布；
//   - RuleManager 在每次建立连接前把过滤规则同步为唯一的 "@handle"；
//   - MentionStream 持有一条过滤流连接，并把每条非空提及交给派发器；
//   - Supervisor 驱动 IDLE → SYNCING_RULES → STREAMING → FAILED 的状态机，
//     会话失败后按固定间隔无限重连，直到被外部停止。
//
// 单条提及的失败只会产生一条失败的 ReplyOutcome，不会中断流；
// 规则同步与流传输的失败会结束当前会话并交由 Supervisor 退避重试。
package bot
