// Package config loads the bridge configuration.
//
// Files are YAML, or TOML when the path ends in ".toml". Before parsing,
// ${VAR_NAME} references are replaced with environment values, so secrets can
// stay out of the file:
//
//	platform:
//	  ws_url: "wss://linkclaw.example/api/v1/ws"
//	  api_url: "https://linkclaw.example"
//	  mcp_url: "https://linkclaw.example/mcp"
//	  token: "${LINKCLAW_TOKEN}"
//
//	duplex:
//	  heartbeat_interval: "30s"
//	  reconnect_base: "1s"
//	  reconnect_max: "30s"
//
//	rpc:
//	  stream_path: "/sse"
//	  request_timeout: "30s"
//	  reconnect_delay: "3s"
//
//	bridge:
//	  dedupe_ttl: "10m"
//
//	database:
//	  path: "~/.local/share/linkclaw/bridge.db"
//
//	logging:
//	  level: "info"
//	  format: "text"
//
// Durations use time.ParseDuration syntax. Empty durations keep the
// component defaults.
package config
