// Package config handles configuration loading for coven-chat.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension) on
// top of development defaults, then individual fields can be overridden by
// environment variables.
//
// # Configuration File
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  grpc_addr: "0.0.0.0:50051"   # optional gRPC health service
//	database:
//	  driver: "sqlite"             # or "badger"
//	  path: "/var/lib/coven-chat/chat.db"
//	auth:
//	  jwt_secret: "${COVEN_CHAT_JWT_SECRET}"
//	logging:
//	  level: "info"
//	  format: "json"
//	notifications:
//	  timeout: "5s"
//	dedupe:
//	  ttl: "10m"
//	  max_entries: 10000
//
// # Environment Variable Expansion
//
// ${VAR_NAME} inside the file is replaced with the variable's value, or the
// empty string when unset.
//
// # Environment Overrides
//
// Applied after the file is parsed:
//
//   - COVEN_CHAT_HTTP_ADDR, COVEN_CHAT_GRPC_ADDR
//   - COVEN_CHAT_DB_DRIVER, COVEN_CHAT_DB_PATH
//   - COVEN_CHAT_JWT_SECRET
//   - COVEN_CHAT_LOG_LEVEL
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax ("750ms", "5s", "10m").
package config
