// Package config loads and validates the conveyor core configuration.
//
// Values come from, in increasing precedence:
//   - built-in defaults matching the installed conveyor hardware
//   - a YAML file (configs/config.yaml by default)
//   - CONVEYOR_* environment variables
//
// Secrets (JWT secret, MQTT password, InfluxDB token, Postgres DSN) should be
// supplied through the environment or a .env file, not the YAML file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Slots.Count)
package config
