// Package config provides configuration management for pfctl.
//
// Configuration is loaded from YAML files and merged in order, later
// sources overriding earlier ones:
//
//  1. Default configuration (built in)
//  2. User configuration (~/.config/pfctl/config.yaml)
//  3. Project configuration (./.pfctl/config.yaml)
//
// # Configuration Structure
//
//	store:
//	  type: sqlite            # file, sqlite, redis or memory
//	  path: ~/.config/pfctl/sessions.db
//	  key: portforwards
//	  redis:
//	    addr: localhost:6379
//	    db: 0
//	    keyPrefix: "pfctl:"
//
//	agent:
//	  listen: 127.0.0.1:4466  # address `pfctl serve` listens on
//	  url: http://127.0.0.1:4466
//	  timeout: 30s
//
//	environment:
//	  mode: auto              # auto, constrained or unconstrained
//	  portRange:
//	    min: 30000
//	    max: 32000
//	  maxAttempts: 4096
//
//	reconcileInterval: 5s
//
// Only the fields present in a file override the layer below it.
package config
