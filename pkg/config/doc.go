// Package config loads application configuration from environment variables.
//
// Every variable carries the TENANTGUARD_ prefix. A .env file in the working
// directory is read first for local development; variables already set in the
// environment win.
//
// Server settings:
//
//	TENANTGUARD_HOST="0.0.0.0"
//	TENANTGUARD_PORT="8080"
//	TENANTGUARD_HEALTH_PORT="9090"
//	TENANTGUARD_READ_TIMEOUT="15s"
//	TENANTGUARD_DEFAULT_TO_CENTRAL="false"
//	TENANTGUARD_RATE_LIMIT="600"  # mutating requests per actor per minute
//
// Database settings:
//
//	TENANTGUARD_DB_DRIVER="postgres"  # postgres or sqlite3
//	TENANTGUARD_DB_URL="postgres://localhost/tenantguard"
//	TENANTGUARD_DB_REPLICA_URLS="postgres://replica1/tenantguard,postgres://replica2/tenantguard"
//	TENANTGUARD_DB_MAX_OPEN_CONNS="25"
//
// Notifications:
//
//	TENANTGUARD_REDIS_URL="redis://localhost:6379/0"
//	TENANTGUARD_REDIS_CHANNEL="tenantguard:memberships"
//
// RBAC engine:
//
//	TENANTGUARD_CENTRAL_TENANT_SLUG="central"
//	TENANTGUARD_MUTATION_TIMEOUT="10s"
//	TENANTGUARD_ROLE_SYNC_TIMEOUT="30s"
//	TENANTGUARD_BULK_TIMEOUT="30s"
//	TENANTGUARD_RESOLVER_CACHE_SIZE="1024"  # 0 disables the cache
//	TENANTGUARD_RESOLVER_CACHE_TTL="30s"
//	TENANTGUARD_POLICY_FILE="/etc/tenantguard/policy.yaml"
//
// Observability settings:
//
//	TENANTGUARD_LOG_LEVEL="info"  # debug, info, warn, error
//	TENANTGUARD_LOG_FORMAT="json"  # json or text
//	TENANTGUARD_METRICS_ENABLED="true"
//	TENANTGUARD_OTEL_ENABLED="true"
//	TENANTGUARD_OTEL_ENDPOINT="otel-collector:4317"
//	TENANTGUARD_OTEL_SAMPLE_RATIO="0.1"
//
// # Usage Example
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("Server: %s\n", cfg.Server.Addr())
package config
