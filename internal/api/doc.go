// Package api 通过 HTTP 暴露意图生命周期、批量处理、交易账本与金库操作。
package api
