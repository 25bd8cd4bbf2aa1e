// Package mqtt provides MQTT client connectivity for Gift Planner Core.
//
// This package manages:
//   - Connection to a Mosquitto broker with auto-reconnect
//   - Publishing with QoS guarantees, including JSON payloads
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// The core uses MQTT to announce its status and to publish retained
// statement cache statistics, so dashboards and other services can watch the
// database engine without opening it.
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) outside local development
//   - Credentials are validated against the broker ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.DatabaseStats(), stats, true)
package mqtt
