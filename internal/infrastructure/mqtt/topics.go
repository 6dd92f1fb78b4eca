package mqtt

import "fmt"

// Topic prefixes for the BenchLink MQTT hierarchy.
//
// All instrument topics use the flat scheme: benchlink/{category}/{instrument}
// where {instrument} is the instrument kind (reader, shaker, robot).
const (
	// TopicPrefix is the base for all BenchLink topics.
	TopicPrefix = "benchlink"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "benchlink/system"
)

// Topics provides builders for BenchLink MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.InstrumentStatus("reader")
//	// Returns: "benchlink/status/reader"
type Topics struct{}

// InstrumentStatus returns the topic for status snapshots from an instrument.
//
// Example: benchlink/status/reader
func (Topics) InstrumentStatus(kind string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefix, kind)
}

// InstrumentHealth returns the topic for instrument manager health.
//
// Example: benchlink/health/shaker
func (Topics) InstrumentHealth(kind string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, kind)
}

// InstrumentCommand returns the topic on which commands for an instrument
// arrive from the supervisory network.
//
// Example: benchlink/command/robot
func (Topics) InstrumentCommand(kind string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, kind)
}

// InstrumentAck returns the topic for command acknowledgements.
//
// Example: benchlink/ack/robot
func (Topics) InstrumentAck(kind string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, kind)
}

// InstrumentDiscovery returns the topic for discovery results.
//
// Example: benchlink/discovery/reader
func (Topics) InstrumentDiscovery(kind string) string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefix, kind)
}

// OperationEvent returns the topic for operation lifecycle events
// (started, completed, timed out, cancelled).
//
// Example: benchlink/operation/reader
func (Topics) OperationEvent(kind string) string {
	return fmt.Sprintf("%s/operation/%s", TopicPrefix, kind)
}

// SystemStatus returns the system status topic.
//
// Example: benchlink/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllInstrumentStatus returns a pattern matching all status snapshots.
//
// Pattern: benchlink/status/+
func (Topics) AllInstrumentStatus() string {
	return fmt.Sprintf("%s/status/+", TopicPrefix)
}

// AllInstrumentCommands returns a pattern matching all instrument commands.
//
// Pattern: benchlink/command/+
func (Topics) AllInstrumentCommands() string {
	return fmt.Sprintf("%s/command/+", TopicPrefix)
}

// AllInstrumentHealth returns a pattern matching all health updates.
//
// Pattern: benchlink/health/+
func (Topics) AllInstrumentHealth() string {
	return fmt.Sprintf("%s/health/+", TopicPrefix)
}

// AllOperationEvents returns a pattern matching all operation events.
//
// Pattern: benchlink/operation/+
func (Topics) AllOperationEvents() string {
	return fmt.Sprintf("%s/operation/+", TopicPrefix)
}

// AllTopics returns a pattern matching all BenchLink topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: benchlink/#
func (Topics) AllTopics() string {
	return "benchlink/#"
}
