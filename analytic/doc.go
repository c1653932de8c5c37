// Package analytic provides the execution framework every streaming
// operator is built on: validated configuration, the runtime core that
// wires an operator to its input and output channels, management command
// handling, and the factory registry used to instantiate operators by
// name at runtime.
//
// An operator package (threshold, drift, missingdata, ...) supplies the
// per-record algorithm and embeds *Core for everything else. Within one
// instance record processing is strictly sequential, so operator state
// needs no locking. Cross-instance communication is exclusively message
// passing over named channels.
package analytic
