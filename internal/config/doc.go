// Package config handles configuration loading for livedesk.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation, sensible defaults, and an fsnotify-based
// watcher that re-applies the live-tunable settings without a restart.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from LIVEDESK_CONFIG environment variable
//  2. ~/.config/livedesk/livedesk.yaml (XDG_CONFIG_HOME respected)
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	notifications:
//	  amqp:
//	    url: "${LIVEDESK_AMQP_URL}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	routing:
//	  sweep_interval: "5s"
//	  cleanup_interval: "10m"
//	  inactivity_threshold: "24h"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: ":8085"   # health endpoints
//
// Database:
//
//	database:
//	  path: "/var/lib/livedesk/livedesk.db"
//
// Routing timing:
//
//	routing:
//	  sweep_interval: "5s"          # queue assignment pass
//	  cleanup_interval: "10m"       # idle-close and purge pass
//	  average_handle_time: "5m"     # feeds the wait estimate
//	  inactivity_threshold: "24h"   # idle conversations get closed
//	  closed_retention: "1h"        # closed rows linger before purge
//
// Agent presence:
//
//	presence:
//	  sweep_interval: "1m"
//	  heartbeat_timeout: "90s"
//
// Notifications:
//
//	notifications:
//	  broadcast_rate: 20     # events/sec on the agent broadcast channel
//	  broadcast_burst: 40
//	  amqp:
//	    enabled: false
//	    url: "${LIVEDESK_AMQP_URL}"
//	    exchange: "livedesk.events"
//
// Agent roster seed:
//
//	agents:
//	  seed:
//	    - id: "agent-amara"
//	      name: "Amara"
//	      department: "billing"
//	      max_capacity: 4
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Hot Reload
//
// Watcher re-reads the file on change. The routing tunables
// (average_handle_time, inactivity_threshold, closed_retention) take effect
// live; addresses, the database path, and the cron intervals need a restart.
// A file that fails to parse or validate is logged and ignored; the previous
// config stays in effect.
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/livedesk/livedesk.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
