// Package config 加载 IntentX 的启动配置：YAML 或 JSON 文件、环境变量覆盖，
// 以及未填写字段的默认值。
package config
