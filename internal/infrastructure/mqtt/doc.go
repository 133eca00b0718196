// Package mqtt publishes the bridge's session events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained session state topics and frame announcements
//   - A retained bridge status topic with a Last Will for offline detection
//   - The start-command subscription used to warm up device sessions
//
// # Topics
//
//	{prefix}/system/status              retained online/offline
//	{prefix}/session/{address}/state    retained worker lifecycle
//	{prefix}/session/{address}/frame    one message per received frame
//	{prefix}/command/start              {"address": "...", "pin": "..."}
//
// # Security Considerations
//
//   - Use TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Start commands carry device PINs; restrict the topic with broker ACLs
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := client.Topics().SessionState(address)
//	client.PublishJSON(topic, event, true)
package mqtt
