// Package mqtt wraps the paho client for BenchLink's supervisory bus.
//
// Instrument status, health, command acknowledgements and operation events
// are published to a Mosquitto broker for scheduling software to consume;
// inbound commands arrive the same way. The client auto-reconnects,
// restores subscriptions after a reconnect, and registers a Last Will so
// the broker announces an unexpected disconnect on the system status
// topic.
//
// Topic layout is centralised in the Topics builders:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllInstrumentCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        return dispatch(topic, payload)
//	    })
//
// Retained publishes are reserved for state topics (status, health) so a
// late-joining supervisor sees current state immediately. Commands and
// events are never retained.
//
// Production brokers run with TLS and per-client ACLs; anonymous plaintext
// is for local development only.
package mqtt
